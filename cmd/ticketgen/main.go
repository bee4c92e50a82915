// Command ticketgen seeds bookings and writes their signed tickets as PNG
// files for rehearsals at the door. It can also sign a staff token.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tixgate/internal/checkin"
	"tixgate/internal/config"
	"tixgate/internal/database"
	"tixgate/internal/identity"
	"tixgate/internal/logger"
	"tixgate/internal/models"
	"tixgate/internal/qr"
	"tixgate/internal/repository"
	"tixgate/internal/ticket"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	bookingID = flag.String("booking", "", "Mint a ticket for an existing booking id")
	seed      = flag.Int("seed", 0, "Create this many confirmed bookings and mint their tickets")
	eventID   = flag.String("event", "", "Event id for seeded bookings (created when missing)")
	outDir    = flag.String("out", ".", "Directory for the PNG files")
	tokenFor  = flag.String("token", "", "Print a staff token for this subject instead of minting tickets")
	groups    = flag.String("groups", "organizer", "Comma-separated groups for -token")
	tokenTTL  = flag.Duration("token-ttl", 8*time.Hour, "Lifetime of the token printed by -token")
)

type TicketGenerator struct {
	repos   *repository.Repositories
	keyring *ticket.Keyring
	qrSize  int
	outDir  string
}

func main() {
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, "text")
	log := logger.Get()

	if *tokenFor != "" {
		if err := printToken(cfg.Identity, *tokenFor, *groups, *tokenTTL); err != nil {
			logger.Fatal("Failed to sign token", "error", err)
		}
		return
	}

	if *bookingID == "" && *seed <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	keyring, err := ticket.NewKeyring(cfg.Tickets.SigningKey)
	if err != nil {
		logger.Fatal("Cannot mint tickets", "error", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	g := &TicketGenerator{
		repos:   repository.NewRepositories(db),
		keyring: keyring,
		qrSize:  cfg.Tickets.QRSize,
		outDir:  *outDir,
	}

	ctx := context.Background()
	if *bookingID != "" {
		path, err := g.MintFor(ctx, *bookingID)
		if err != nil {
			logger.Fatal("Failed to mint ticket", "booking_id", *bookingID, "error", err)
		}
		log.Info("Ticket written", "booking_id", *bookingID, "path", path)
	}

	if *seed > 0 {
		if err := g.Seed(ctx, *eventID, *seed); err != nil {
			logger.Fatal("Failed to seed bookings", "error", err)
		}
		log.Info("Seeding completed", "count", *seed)
	}
}

// MintFor writes the ticket of one booking and returns the file path.
func (g *TicketGenerator) MintFor(ctx context.Context, id string) (string, error) {
	booking, err := g.repos.Bookings.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if booking == nil {
		return "", fmt.Errorf("booking %s not found", id)
	}
	if !checkin.Redeemable(booking.Status) {
		return "", fmt.Errorf("booking %s is %s", id, booking.Status)
	}

	payload, err := g.keyring.Mint(booking.ID, booking.EventID, booking.UserID, time.Now()).Encode()
	if err != nil {
		return "", err
	}
	png, err := qr.Encode(payload, g.qrSize)
	if err != nil {
		return "", err
	}

	path := filepath.Join(g.outDir, booking.ID+".png")
	if err := os.WriteFile(path, png, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Seed creates count attendees with one confirmed booking each for the event.
func (g *TicketGenerator) Seed(ctx context.Context, evtID string, count int) error {
	if evtID == "" {
		evtID = "evt-" + uuid.New().String()[:8]
	}

	event, err := g.repos.Events.GetByID(ctx, evtID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil {
		event = &models.Event{
			ID:            evtID,
			Title:         "Rehearsal " + evtID,
			DatetimeStart: time.Now().Add(24 * time.Hour),
		}
		if err := g.repos.Events.Create(ctx, event); err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}
		logger.Get().Info("Created event", "event_id", event.ID)
	}

	for i := 0; i < count; i++ {
		user := &models.User{
			ID:       "usr-" + uuid.New().String()[:8],
			FullName: fmt.Sprintf("Attendee %d", i+1),
		}
		user.Email = user.ID + "@example.test"
		if err := g.repos.Users.Upsert(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		paymentID := "seed-" + uuid.New().String()
		booking := &models.Booking{
			ID:          uuid.New().String(),
			EventID:     event.ID,
			UserID:      user.ID,
			Status:      models.BookingConfirmed,
			TicketCount: 1,
			PaymentID:   &paymentID,
		}
		if err := g.repos.Bookings.Create(ctx, booking); err != nil {
			return fmt.Errorf("failed to create booking: %w", err)
		}

		path, err := g.MintFor(ctx, booking.ID)
		if err != nil {
			return err
		}
		logger.Get().Info("Seeded booking", "booking_id", booking.ID, "user_id", user.ID, "path", path)
	}
	return nil
}

func printToken(cfg config.IdentityConfig, subject, groupList string, ttl time.Duration) error {
	verifier, err := identity.NewVerifier(cfg.TokenSecret, cfg.Issuer, cfg.Audience)
	if err != nil {
		return err
	}

	now := time.Now()
	raw, err := verifier.Sign(identity.Claims{
		Name:   subject,
		Groups: strings.Split(groupList, ","),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	if err != nil {
		return err
	}

	fmt.Println(raw)
	return nil
}
