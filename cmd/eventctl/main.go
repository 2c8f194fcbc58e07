package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/live"
	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/repository"
	"github.com/noah-isme/campus-events-api/internal/service"
	"github.com/noah-isme/campus-events-api/pkg/config"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/logger"
)

const eventctlVersion = "1.0.0"

const usage = `Campus events control.

The document store is selected by the same environment as the API
(DOCSTORE_DRIVER, MONGO_URI, MONGO_DATABASE).

Usage:
    eventctl seed [--password=<password>]
    eventctl watch <view> --email=<email> [--count=<count>]
    eventctl -h | --help
    eventctl --version

Options:
    -h --help              Show this screen.
    --version              Show version.
    --password=<password>  Password of the seeded accounts [default: campus123].
    --email=<email>        Account whose view is watched.
    --count=<count>        Exit after printing this many snapshots.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], eventctlVersion)
	if err != nil {
		log.Fatalf("parse args: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("document store unavailable", zap.Error(err))
	}
	defer store.Close(context.Background()) //nolint:errcheck

	if seed, _ := opts.Bool("seed"); seed {
		password, _ := opts.String("--password")
		err = runSeed(ctx, store, password, logr)
	} else if watch, _ := opts.Bool("watch"); watch {
		err = runWatch(ctx, cfg, store, opts, logr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logr.Fatal("eventctl failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, logr *zap.Logger) (docstore.Store, error) {
	if cfg.DocStore.Driver != config.DocStoreMongo {
		logr.Warn("using in-memory document store; seeded data is not shared with the API")
		return docstore.NewMemoryStore(), nil
	}
	return docstore.NewMongoStore(ctx, docstore.MongoConfig{
		URI:            cfg.DocStore.MongoURI,
		Database:       cfg.DocStore.MongoDatabase,
		ConnectTimeout: cfg.DocStore.ConnectTimeout,
	}, logr)
}

type seedAccount struct {
	first, last, email string
	role               models.Role
}

type seedEvent struct {
	name, category, location string
	inDays, capacity         int
}

var (
	seedAccounts = []seedAccount{
		{first: "Olive", last: "Organizer", email: "organizer@campus.edu", role: models.RoleOrganizer},
		{first: "Sam", last: "Student", email: "sam@campus.edu", role: models.RoleStudent},
		{first: "Ada", last: "Attendee", email: "ada@campus.edu", role: models.RoleStudent},
	}
	seedEvents = []seedEvent{
		{name: "Go Workshop", category: "workshop", location: "Lab 2", inDays: 7, capacity: 30},
		{name: "Spring Hackathon", category: "hackathon", location: "Main Hall", inDays: 21, capacity: 120},
		{name: "Cloud Seminar", category: "seminar", location: "Room 101", inDays: 35, capacity: 60},
		{name: "Security Webinar", category: "webinar", location: "Online", inDays: 40, capacity: 500},
		{name: "Campus Tech Conference", category: "conference", location: "Auditorium", inDays: 70, capacity: 300},
	}
)

func runSeed(ctx context.Context, store docstore.Store, password string, logr *zap.Logger) error {
	accounts := repository.NewAccountRepository(store)
	authSvc := service.NewAuthService(service.AuthServiceParams{
		Accounts: accounts,
		Tokens:   repository.NewTokenRepository(store),
		Logger:   logr,
	})
	eventSvc := service.NewEventService(service.EventServiceParams{
		Repo:   repository.NewEventRepository(store),
		Logger: logr,
	})
	registrationSvc := service.NewRegistrationService(service.RegistrationServiceParams{
		Repo:   repository.NewRegistrationRepository(store),
		Events: eventSvc,
		Logger: logr,
	})

	actors := make([]service.Actor, 0, len(seedAccounts))
	for _, acc := range seedAccounts {
		actor, err := ensureAccount(ctx, authSvc, accounts, acc, password)
		if err != nil {
			return err
		}
		actors = append(actors, actor)
	}
	organizer, students := actors[0], actors[1:]

	today := time.Now().UTC().Truncate(24 * time.Hour)
	for i, ev := range seedEvents {
		event, err := eventSvc.Create(ctx, organizer, models.CreateEventRequest{
			Name:        ev.name,
			Description: ev.name + " for the whole campus",
			Category:    ev.category,
			Location:    ev.location,
			Date:        today.AddDate(0, 0, ev.inDays),
			Capacity:    ev.capacity,
		})
		if err != nil {
			return fmt.Errorf("seed event %q: %w", ev.name, err)
		}
		for j, student := range students {
			if (i+j)%2 != 0 {
				continue
			}
			if _, err := registrationSvc.RSVP(ctx, student, event.ID); err != nil {
				return fmt.Errorf("seed rsvp %q for %s: %w", ev.name, student.Email, err)
			}
		}
		logr.Info("seeded event", zap.String("event_id", event.ID), zap.String("name", ev.name))
	}
	return nil
}

func ensureAccount(ctx context.Context, authSvc *service.AuthService, accounts *repository.AccountRepository, acc seedAccount, password string) (service.Actor, error) {
	_, err := authSvc.Register(ctx, models.RegisterRequest{
		FirstName:       acc.first,
		LastName:        acc.last,
		UserName:        acc.first,
		Email:           acc.email,
		Password:        password,
		ConfirmPassword: password,
		Role:            acc.role,
	})
	if err != nil && appErrors.FromError(err).Code != appErrors.ErrConflict.Code {
		return service.Actor{}, fmt.Errorf("seed account %s: %w", acc.email, err)
	}
	account, err := accounts.FindByEmail(ctx, acc.email)
	if err != nil {
		return service.Actor{}, err
	}
	return actorFromAccount(account), nil
}

func actorFromAccount(account *models.Account) service.Actor {
	return service.Actor{UserID: account.ID, Email: account.Email, FullName: account.FullName(), Role: account.Role}
}

func runWatch(ctx context.Context, cfg *config.Config, store docstore.Store, opts docopt.Opts, logr *zap.Logger) error {
	rawView, _ := opts.String("<view>")
	view, err := live.ParseViewName(rawView)
	if err != nil {
		return err
	}
	email, _ := opts.String("--email")
	limit := 0
	if raw, _ := opts.String("--count"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			return fmt.Errorf("count must be a number: %w", err)
		}
	}

	account, err := repository.NewAccountRepository(store).FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("watch as %s: %w", email, err)
	}
	actor := actorFromAccount(account)

	monthOrder := live.MonthOrderLabel
	if cfg.Dashboard.CalendarMonths {
		monthOrder = live.MonthOrderCalendar
	}
	session := live.NewSession(store, actor.Viewer(), []live.ViewName{view}, live.ViewConfig{
		TopN:          cfg.Dashboard.TopCategories,
		UpcomingLimit: cfg.Dashboard.UpcomingLimit,
		MonthOrder:    monthOrder,
	}, live.Options{Logger: logr})
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		return err
	}
	changes := session.Changes()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	printed := 0
	for {
		payload, err := session.Render(view)
		if err == nil {
			if err := enc.Encode(payload); err != nil {
				return err
			}
			printed++
			if limit > 0 && printed >= limit {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
			changes = session.Changes()
		}
	}
}
