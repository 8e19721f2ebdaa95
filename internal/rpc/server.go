package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/microsoft/trident/internal/config"
	"github.com/microsoft/trident/internal/engine"
	"github.com/microsoft/trident/internal/metrics"
	"github.com/microsoft/trident/internal/status"
)

// Server adapts an *engine.Engine to ServicingServer, translating wire
// requests into the Servicing FSM's own AllowedOps-shaped calls and
// recording phase-duration metrics around each one.
type Server struct {
	Engine *engine.Engine
	Sink   *metrics.Sink

	mu          sync.Mutex
	subscribers map[chan status.HostStatus]struct{}
	wired       bool
}

// subscribe registers ch to receive every HostStatus PhoneHome observes,
// wiring itself into Engine.PhoneHome (preserving any caller-set hook) the
// first time a GetStatus stream attaches.
func (s *Server) subscribe(ch chan status.HostStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribers == nil {
		s.subscribers = map[chan status.HostStatus]struct{}{}
	}
	s.subscribers[ch] = struct{}{}
	if !s.wired {
		s.wired = true
		prev := s.Engine.PhoneHome
		s.Engine.PhoneHome = func(hs status.HostStatus, opErr error) {
			if prev != nil {
				prev(hs, opErr)
			}
			s.broadcast(hs)
		}
	}
}

func (s *Server) unsubscribe(ch chan status.HostStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, ch)
}

func (s *Server) broadcast(hs status.HostStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- hs:
		default:
			log.Warn("GetStatus subscriber too slow, dropping a HostStatus update")
		}
	}
}

func allowedOps(stage, finalize bool) engine.AllowedOps {
	return engine.AllowedOps{Stage: stage, Finalize: finalize}
}

func (s *Server) respond(operation string, exit engine.ExitKind, err error) (*OperationResponse, error) {
	requestID := uuid.New().String()
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordOperation(s.Sink, operation, outcome)
	log.WithFields(log.Fields{"requestId": requestID, "operation": operation, "outcome": outcome}).Info("servicing rpc completed")
	resp := &OperationResponse{RequestID: requestID, ExitKind: string(exit)}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}

// Install stages and/or finalizes a clean install from the supplied Host
// Configuration YAML.
func (s *Server) Install(ctx context.Context, req *InstallRequest) (*OperationResponse, error) {
	timer := metrics.NewTimer("install", "rpc")
	defer timer.Stop(s.Sink)

	hc, err := config.LoadYAML(req.HostConfigurationYAML)
	if err != nil {
		return s.respond("install", "", err)
	}
	exit, err := s.Engine.Install(ctx, hc, allowedOps(req.Stage, req.Finalize), req.Multiboot)
	return s.respond("install", exit, err)
}

// Update stages and/or finalizes a new Host Configuration.
func (s *Server) Update(ctx context.Context, req *UpdateRequest) (*OperationResponse, error) {
	timer := metrics.NewTimer("update", "rpc")
	defer timer.Stop(s.Sink)

	hc, err := config.LoadYAML(req.HostConfigurationYAML)
	if err != nil {
		return s.respond("update", "", err)
	}
	exit, err := s.Engine.Update(ctx, hc, allowedOps(req.Stage, req.Finalize))
	return s.respond("update", exit, err)
}

// Commit runs boot validation and the configured health check against the
// currently-staged update.
func (s *Server) Commit(ctx context.Context, _ *CommitRequest) (*OperationResponse, error) {
	timer := metrics.NewTimer("commit", "rpc")
	defer timer.Stop(s.Sink)

	exit, err := s.Engine.Commit(ctx)
	return s.respond("commit", exit, err)
}

// Rollback reverts to the best available prior HostStatus.
func (s *Server) Rollback(ctx context.Context, req *RollbackRequest) (*OperationResponse, error) {
	timer := metrics.NewTimer("rollback", "rpc")
	defer timer.Stop(s.Sink)

	exit, err := s.Engine.Rollback(ctx, req.ExpectRuntimeUpdate, req.ExpectAbUpdate, allowedOps(req.Stage, req.Finalize))
	return s.respond("rollback", exit, err)
}

// GetStatus pushes the current HostStatus immediately, then a fresh
// snapshot every time PhoneHome observes one, until the caller disconnects
// or the context is cancelled.
func (s *Server) GetStatus(_ *GetStatusRequest, stream ServicingGetStatusServer) error {
	send := func(hs status.HostStatus) error {
		raw, err := json.Marshal(hs)
		if err != nil {
			return err
		}
		return stream.Send(&StatusUpdate{HostStatusJSON: raw})
	}

	hs, err := s.Engine.Datastore.HostStatus()
	if err != nil {
		return err
	}
	if err := send(hs); err != nil {
		return err
	}

	updates := make(chan status.HostStatus, 1)
	s.subscribe(updates)
	defer s.unsubscribe(updates)

	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case hs = <-updates:
			if err := send(hs); err != nil {
				return err
			}
		case <-time.After(30 * time.Second):
			// Idle keepalive: re-sends the last known status so a client
			// behind a proxy with its own idle timeout stays connected.
			if err := send(hs); err != nil {
				return err
			}
		}
	}
}
