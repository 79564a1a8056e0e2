package service

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

type Service interface {
	Init() error
	Start() error
	Stop() error
}

// Run drives s through its lifecycle and blocks until SIGINT or SIGTERM.
func Run(s Service) error {
	if err := s.Init(); err != nil {
		return err
	}

	if err := s.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Info().Msgf("received signal %v, stopping service", received)

	return s.Stop()
}
