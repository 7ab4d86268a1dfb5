package server

import (
	"fmt"
	"net/http"
	"promptbank/internal/config"
	"promptbank/internal/controller"
	"time"
)

type Server struct {
	sc     controller.ServerController
	bc     controller.BulkController
	config config.Config
}

func New(config config.Config, sc controller.ServerController, bc controller.BulkController) *http.Server {
	server := Server{
		sc:     sc,
		bc:     bc,
		config: config,
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%v", config.Port),
		Handler:      server.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
