package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/salonlab/concierge/agent/classify"
	"github.com/salonlab/concierge/agent/llm"
	"github.com/salonlab/concierge/agent/orchestrator"
	"github.com/salonlab/concierge/agent/pipeline"
	"github.com/salonlab/concierge/agent/prompt"
	"github.com/salonlab/concierge/agent/session"
	"github.com/salonlab/concierge/agent/stage"
	toolx "github.com/salonlab/concierge/agent/tool"
	"github.com/salonlab/concierge/agent/toolcall"
	"github.com/salonlab/concierge/storage"

	configx "github.com/salonlab/concierge/pkg/config"
	_ "github.com/salonlab/concierge/pkg/logger/autoload"
	telegramx "github.com/salonlab/concierge/pkg/telegram"
)

type AppConfig struct {
	Addr          string        `envconfig:"ADDR" split_words:"true" default:":8080"`
	StagesPath    string        `envconfig:"STAGES_PATH" split_words:"true"`
	Timezone      string        `envconfig:"TIMEZONE" split_words:"true"`
	HistoryWindow int           `envconfig:"HISTORY_WINDOW" split_words:"true"`
	MaxToolRounds int           `envconfig:"MAX_TOOL_ROUNDS" split_words:"true"`
	SeedDemoData  bool          `envconfig:"SEED_DEMO_DATA" split_words:"true"`
	HandleTimeout time.Duration `envconfig:"HANDLE_TIMEOUT" split_words:"true" default:"90s"`
	ShutdownGrace time.Duration `envconfig:"SHUTDOWN_GRACE" split_words:"true" default:"10s"`
}

const clearConfirmation = "Done, I've cleared our conversation. How can I help you?"

func main() {
	appCfg := configx.MustNew[AppConfig]("APP")

	ctx := context.Background()

	db, err := storage.Open(ctx, *configx.MustNew[storage.Config]("DB"))
	if err != nil {
		log.Fatal().Err(err).Msg("connect to postgres")
	}
	defer db.Close()

	if err := storage.EnsureSchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	if appCfg.SeedDemoData {
		if err := storage.SeedDemo(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("seed demo data")
		}
	}

	booking := storage.NewBookingRepo(db)
	history := storage.NewHistoryRepo(db)

	loc := time.Local
	if tz := strings.TrimSpace(appCfg.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			log.Fatal().Err(err).Str("timezone", tz).Msg("load timezone")
		}
	}

	salon := toolx.NewSalonService(booking, loc)
	registry, err := toolx.NewRegistry(salon.Definitions()...)
	if err != nil {
		log.Fatal().Err(err).Msg("build tool registry")
	}

	catalog, err := stage.Load(appCfg.StagesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load stage catalog")
	}
	if err := catalog.ValidateTools(registry.Has); err != nil {
		log.Fatal().Err(err).Msg("stage catalog references unknown tools")
	}

	llmCfg := configx.MustNew[llm.Config]("OPENROUTER")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("validate llm config")
	}
	classifierModel, err := llm.NewClient(ctx, llmCfg.OpenRouterFor(llm.RoleClassifier))
	if err != nil {
		log.Fatal().Err(err).Msg("init classifier model")
	}
	responderModel, err := llm.NewClient(ctx, llmCfg.OpenRouterFor(llm.RoleResponder))
	if err != nil {
		log.Fatal().Err(err).Msg("init responder model")
	}

	loop := orchestrator.NewLoop(responderModel, registry, toolcall.NewNormalizer(registry.IdentityTools())).
		WithMaxIterations(appCfg.MaxToolRounds)
	classifier := classify.New(classifierModel, catalog, prompt.NewBuilder())

	service, err := pipeline.New(pipeline.Deps{
		History:    history,
		Backend:    booking,
		Focus:      salon,
		Sessions:   session.NewStore(),
		Catalog:    catalog,
		Registry:   registry,
		Classifier: classifier,
		Loop:       loop,
		Responder:  responderModel,
	}, pipeline.Config{HistoryWindow: appCfg.HistoryWindow})
	if err != nil {
		log.Fatal().Err(err).Msg("assemble pipeline")
	}

	bot := telegramx.MustNew(*configx.MustNew[telegramx.Config]("TELEGRAM"))

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Post("/telegram/webhook", webhookHandler(service, bot, appCfg.HandleTimeout))

	server := &http.Server{
		Addr:    appCfg.Addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", appCfg.Addr).Msg("webhook server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("webhook server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("stopped")
}

// webhookHandler acks every update immediately and answers out of band, so
// Telegram never retries a slow model round.
func webhookHandler(service *pipeline.Service, bot *telegramx.Client, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !bot.VerifySecret(r.Header.Get("X-Telegram-Bot-Api-Secret-Token")) {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		var update telegramx.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			log.Warn().Err(err).Msg("malformed webhook payload")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusOK)

		msg := update.Message
		if msg == nil || msg.From == nil || strings.TrimSpace(msg.Text) == "" {
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			dispatch(ctx, service, bot, msg.From.ID, msg.Chat.ID, msg.Text)
		}()
	}
}

func dispatch(ctx context.Context, service *pipeline.Service, bot *telegramx.Client, userID, chatID int64, text string) {
	command := strings.TrimSpace(text)
	if command == "/clear" || command == "/start" {
		if _, err := service.Reset(ctx, userID); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("reset failed")
		}
		if err := bot.SendMessage(ctx, chatID, clearConfirmation); err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Msg("send confirmation failed")
		}
		return
	}

	reply, escalated, err := service.HandleMessage(ctx, userID, text)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("handle message failed")
		return
	}
	if escalated {
		log.Warn().Int64("user_id", userID).Msg("conversation escalated to a human")
	}
	if err := bot.SendMessage(ctx, chatID, reply); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("send reply failed")
	}
}
