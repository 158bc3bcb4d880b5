package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goodbids/auction-server/configs"
	"github.com/goodbids/auction-server/pkg/types"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
)

// Service represents a service that interacts with a database.
type Service interface {
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health() map[string]string

	// Close terminates the database connection.
	// It returns an error if the connection cannot be closed.
	Close() error

	// USER METHODS
	GetUserByEmail(ctx context.Context, email string) (types.User, error)
	GetUserByID(ctx context.Context, id string) (types.User, error)

	// AUCTION METHODS
	CreateAuction(ctx context.Context, auction types.Auction) (types.Auction, error)
	GetAuctionByID(ctx context.Context, auctionID string) (types.Auction, error)
	ListAuctions(ctx context.Context, status string) ([]types.Auction, error)
	UpdateAuction(ctx context.Context, auction types.Auction) (types.Auction, error)
	SetAuctionStatus(ctx context.Context, auctionID, status string) error
	UnchallengedAuctions(ctx context.Context, now time.Time) ([]types.Auction, error)

	// BID LEDGER METHODS
	CreateBid(ctx context.Context, bid types.Bid) (types.Bid, error)
	GetBidByID(ctx context.Context, bidID string) (types.Bid, error)
	LatestBid(ctx context.Context, auctionID string) (types.Bid, error)
	BidsForAuction(ctx context.Context, auctionID string) ([]types.Bid, error)
	SetBidOrderID(ctx context.Context, bidID, orderID string) error
	CancelBid(ctx context.Context, bidID string) (types.Bid, error)

	// LOCK METHODS
	AcquireLock(ctx context.Context, lock types.BidLock) error
	ReleaseLock(ctx context.Context, auctionID string) error
	GetLock(ctx context.Context, auctionID string) (types.BidLock, error)
	ExpiredLocks(ctx context.Context, now time.Time) ([]types.BidLock, error)

	// FREE BID METHODS
	GrantFreeBid(ctx context.Context, freeBid types.FreeBid) (types.FreeBid, error)
	FreeBidsForUser(ctx context.Context, userID string) ([]types.FreeBid, error)

	// COMMENT METHODS
	CreateComment(ctx context.Context, comment types.Comment) (types.Comment, error)
	CommentsForAuction(ctx context.Context, auctionID string) ([]types.Comment, error)

	// AUDIT METHODS
	InsertBidEvent(ctx context.Context, event types.BidEvent) error

	// WORKFLOW METHODS
	FinalizeBid(ctx context.Context, p FinalizeParams) (types.Bid, error)

	// TRANSACTION METHODS
	BeginTx(ctx context.Context) (*sql.Tx, error)
	GetAuctionByIDTx(ctx context.Context, tx *sql.Tx, auctionID string) (types.Auction, error)
	ApplyBidTx(ctx context.Context, tx *sql.Tx, auctionID string, amount int, bidderID string, ts time.Time, expectedHighBid int) error
	CompleteBidTx(ctx context.Context, tx *sql.Tx, bidID string) (types.Bid, error)
	RedeemFreeBidTx(ctx context.Context, tx *sql.Tx, freeBidID, userID string) error
}

type service struct {
	db *sql.DB
}

func New(cfg *configs.Config) (Service, error) {
	dbConfig := cfg.Database
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.Name,
		dbConfig.SSLMode,
	)
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	return &service{db: db}, nil
}

// NewFromDB wraps an existing connection. Used by the integration tests and
// the archiver, which receive their connection from elsewhere.
func NewFromDB(db *sql.DB) Service {
	return &service{db: db}
}

// Health checks the health of the database connection by pinging the database.
// It returns a map with keys indicating various health statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	// Ping the database
	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		log.Errorf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	// Get database stats (like open connections, in use, idle, etc.)
	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()
	stats["max_idle_closed"] = strconv.FormatInt(dbStats.MaxIdleClosed, 10)
	stats["max_lifetime_closed"] = strconv.FormatInt(dbStats.MaxLifetimeClosed, 10)

	if dbStats.OpenConnections > 40 {
		stats["message"] = "The database is experiencing heavy load."
	}

	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

// Close closes the database connection.
func (s *service) Close() error {
	log.Info("Disconnected from database")
	return s.db.Close()
}

// BeginTx starts a new database transaction. Serializable isolation: the
// bid finalization step relies on it to keep the ledger and the auction row
// consistent as a unit.
func (s *service) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	return tx, nil
}
