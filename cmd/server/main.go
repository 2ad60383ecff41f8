package main

import (
	"github.com/nfrund/parley/internal/server"
)

func main() {
	s := server.New()

	s.RegisterRoutes()

	s.Start(s.Cfg.Addr)
}
