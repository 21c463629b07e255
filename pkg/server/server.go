// Package server runs the long-lived services of a grid process (HTTP
// gateway, orphan collector, metrics endpoint) over one chunk database.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittogrid/internal/logger"
	"github.com/marmos91/dittogrid/pkg/chunkstore"
)

// Service is a component managed by Server.
//
// Thread safety:
// Implementations must allow Stop to be called concurrently with Run, and
// more than once.
type Service interface {
	// Run serves until ctx is cancelled or an unrecoverable error occurs.
	// Returning before cancellation is treated as a failure of the process.
	Run(ctx context.Context) error

	// Stop initiates graceful shutdown, bounded by ctx.
	Stop(ctx context.Context) error

	// Name is used in logs.
	Name() string
}

// porter is implemented by services that bind a TCP port.
type porter interface {
	Port() int
}

// Server manages the lifecycle of the services sharing a chunk database.
//
// Lifecycle:
//  1. Creation: New() with the database
//  2. Registration: AddService() for each component
//  3. Startup: Serve() runs all services concurrently
//  4. Shutdown: context cancellation or a failing service stops every
//     service in reverse order, then closes the database
//
// Example usage:
//
//	srv := server.New(db, 30*time.Second)
//	_ = srv.AddService(gw)
//	_ = srv.AddService(collector)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type Server struct {
	db              chunkstore.Database
	shutdownTimeout time.Duration

	mu       sync.Mutex
	services []Service
	served   bool
}

// New creates a server over db. A zero shutdownTimeout selects 30s.
func New(db chunkstore.Database, shutdownTimeout time.Duration) *Server {
	if db == nil {
		panic("database cannot be nil")
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	return &Server{
		db:              db,
		shutdownTimeout: shutdownTimeout,
	}
}

// AddService registers svc. Services binding a port must not share one.
func (s *Server) AddService(svc Service) error {
	if svc == nil {
		panic("service cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return errors.New("cannot add service after Serve() has been called")
	}

	for _, existing := range s.services {
		if existing.Name() == svc.Name() {
			return fmt.Errorf("service %s already registered", svc.Name())
		}
		p, ok1 := existing.(porter)
		q, ok2 := svc.(porter)
		if ok1 && ok2 && p.Port() == q.Port() {
			return fmt.Errorf("port %d already in use by %s", q.Port(), existing.Name())
		}
	}

	s.services = append(s.services, svc)
	logger.Debug("Registered %s service", svc.Name())
	return nil
}

// Services returns a snapshot of the registered services.
func (s *Server) Services() []Service {
	s.mu.Lock()
	defer s.mu.Unlock()

	services := make([]Service, len(s.services))
	copy(services, s.services)
	return services
}

type serviceError struct {
	name string
	err  error
}

// Serve runs every registered service and blocks until ctx is cancelled or a
// service fails. It returns ctx.Err() after a requested shutdown and the
// failing service's error otherwise. The database is closed on return.
//
// Serve may only be called once.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return errors.New("Serve() has already been called")
	}
	s.served = true
	services := make([]Service, len(s.services))
	copy(services, s.services)
	s.mu.Unlock()

	if len(services) == 0 {
		return errors.New("no services registered; call AddService() before Serve()")
	}

	defer func() {
		if err := s.db.Close(); err != nil {
			logger.Error("Failed to close chunk database: %v", err)
		}
	}()

	logger.Info("Starting %d service(s)", len(services))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan serviceError, len(services))
	var wg sync.WaitGroup

	for _, svc := range services {
		wg.Add(1)
		go func(svc Service) {
			defer wg.Done()

			err := svc.Run(runCtx)
			switch {
			case runCtx.Err() != nil:
				logger.Debug("%s stopped", svc.Name())
			case err == nil:
				errChan <- serviceError{name: svc.Name(), err: errors.New("exited unexpectedly")}
			default:
				errChan <- serviceError{name: svc.Name(), err: err}
			}
		}(svc)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case failed := <-errChan:
		logger.Error("%s failed: %v - stopping all services", failed.name, failed.err)
		shutdownErr = fmt.Errorf("%s: %w", failed.name, failed.err)
	}

	cancel()
	s.stopAll(services)
	wg.Wait()

	logger.Info("All services stopped")
	return shutdownErr
}

// stopAll stops services in reverse registration order.
func (s *Server) stopAll(services []Service) {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		if err := svc.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s: %v", svc.Name(), err)
		}
	}
}
