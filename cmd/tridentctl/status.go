package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/microsoft/trident/internal/engine"
	"github.com/microsoft/trident/internal/status"
)

func printStatus(hs status.HostStatus, exit engine.ExitKind) {
	fmt.Printf("%s  %s\n", color.CyanString("servicing state:"), stateColor(hs.ServicingState))
	fmt.Printf("%s  %s\n", color.CyanString("servicing type: "), hs.ServicingType)
	fmt.Printf("%s  %s\n", color.CyanString("active volume:  "), hs.AbActiveVolume)
	fmt.Printf("%s  %d\n", color.CyanString("install index:  "), hs.InstallIndex)
	if exit != "" {
		fmt.Printf("%s  %s\n", color.CyanString("exit kind:      "), exitColor(exit))
	}
	if hs.LastError != nil {
		fmt.Printf("%s  %s\n", color.RedString("last error:     "), *hs.LastError)
	}
	if len(hs.BlockDevicePaths) > 0 {
		fmt.Println(color.CyanString("block devices:"))
		for id, bp := range hs.BlockDevicePaths {
			fmt.Printf("  %-24s %-24s %8s  %s\n", id, bp.Path, humanizeBytes(bp.SizeBytes), bp.Initialization)
		}
	}
}

func stateColor(s status.ServicingState) string {
	str := string(s)
	switch s {
	case status.ServicingStateNotProvisioned:
		return color.YellowString(str)
	case status.ServicingStateProvisioned, status.ServicingStateAbUpdateFinalized:
		return color.GreenString(str)
	case status.ServicingStateAbUpdateHealthCheckFailed:
		return color.New(color.FgRed, color.Bold).Sprint(str)
	default:
		return str
	}
}

func exitColor(e engine.ExitKind) string {
	switch e {
	case engine.ExitNeedsReboot:
		return color.YellowString(string(e))
	default:
		return color.GreenString(string(e))
	}
}

func humanizeBytes(n uint64) string {
	return humanize.IBytes(n)
}
