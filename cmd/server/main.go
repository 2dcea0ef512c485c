// Command server wires together the signaling control plane: the Client
// and Room Registries, the Media Engine Adapter, the Fan-out & Event
// Bridge, the websocket gateway, and the read-only admin HTTP surface.
// Bootstrap style (global zerolog logger, graceful shutdown via
// signal.NotifyContext) is grounded on dkeye-Voice's cmd/server/main.go.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/confplane/signaling-core/internal/adminapi"
	"github.com/confplane/signaling-core/internal/auth"
	"github.com/confplane/signaling-core/internal/bridge"
	"github.com/confplane/signaling-core/internal/config"
	"github.com/confplane/signaling-core/internal/core"
	"github.com/confplane/signaling-core/internal/domain"
	"github.com/confplane/signaling-core/internal/engine"
	"github.com/confplane/signaling-core/internal/recorder"
	"github.com/confplane/signaling-core/internal/signaling"
	"github.com/confplane/signaling-core/internal/wsgate"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(os.Stderr).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	numWorkers := runtime.NumCPU() - 1
	if numWorkers < 1 {
		numWorkers = 1
	}

	mediaEngine, err := engine.NewAdapter(engine.Config{
		NumWorkers:  numWorkers,
		ICEServers:  cfg.ICEServers,
		ListenIPs:   cfg.ListenIPStrings(),
		AnnouncedIP: cfg.PublicIP,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("starting media engine")
	}

	rooms := core.NewRoomRegistry(cfg.RoomDefaults(), mediaEngine)

	var validator *auth.Validator
	if cfg.JWTSecret != "" {
		validator = auth.NewValidator(cfg.JWTSecret)
	}

	var eb *bridge.Bridge
	clients := core.NewClientRegistry(rooms, mediaEngine, func(room domain.RoomName, payload any, exclude domain.ClientID) {
		eb.BroadcastToRoom(room, payload, exclude)
	})
	eb = bridge.New(mediaEngine, clients, rooms)
	eb.Start()

	recorderClient := recorder.NewClient(cfg.RecorderAPIURL)

	deps := signaling.Deps{
		Clients:    clients,
		Rooms:      rooms,
		Engine:     mediaEngine,
		Bridge:     eb,
		Auth:       validator,
		Recorder:   recorderClient,
		EnableAuth: cfg.EnableAuth,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsgate.Handler(func(conn *wsgate.Conn, r *http.Request) {
		sess := signaling.New(deps, conn)
		if !sess.Authenticate(r.URL.Query().Get("token")) {
			_ = conn.Close()
			return
		}
		conn.OnMessage(sess.HandleMessage)
		conn.OnClose(sess.Disconnect)
		conn.Run()
	}))

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: mux,
	}

	adminServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.AdminPort),
		Handler: adminapi.SetupRouter(rooms, mediaEngine, validator),
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("signaling server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("signaling server crashed")
		}
	}()

	go func() {
		log.Info().Int("port", cfg.AdminPort).Msg("admin server listening")
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("admin server crashed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)
}
