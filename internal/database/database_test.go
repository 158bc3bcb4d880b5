package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	apperrors "github.com/goodbids/auction-server/pkg/errors"
	"github.com/goodbids/auction-server/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

var (
	testDB  *sql.DB
	testSvc Service
)

func mustStartPostgresContainer() (func(context.Context) error, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("goodbids_test"),
		postgres.WithUsername("goodbids"),
		postgres.WithPassword("goodbids"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("could not start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return container.Terminate, err
	}

	testDB, err = sql.Open("pgx", connStr)
	if err != nil {
		return container.Terminate, err
	}
	// pgx's extended protocol takes one statement at a time
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if stmt = strings.TrimSpace(stmt); stmt == "" {
			continue
		}
		if _, err := testDB.ExecContext(ctx, stmt); err != nil {
			return container.Terminate, fmt.Errorf("could not apply schema: %w", err)
		}
	}

	testSvc = NewFromDB(testDB)
	return container.Terminate, nil
}

func TestMain(m *testing.M) {
	teardown, err := mustStartPostgresContainer()
	if err != nil {
		log.Fatalf("could not start postgres container: %v", err)
	}

	code := m.Run()

	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Errorf("could not teardown postgres container: %v", err)
		}
	}
	os.Exit(code)
}

func seedCharity(t *testing.T) string {
	t.Helper()
	var id string
	err := testDB.QueryRow(
		`INSERT INTO charities (name) VALUES ('Test Charity') RETURNING id`).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedUser(t *testing.T, role string) types.User {
	t.Helper()
	var user types.User
	err := testDB.QueryRow(
		`INSERT INTO users (name, email, role) VALUES ($1, $2, $3)
         RETURNING id, name, email, role`,
		"Test User", uuid.NewString()+"@example.com", role).
		Scan(&user.ID, &user.Name, &user.Email, &user.Role)
	require.NoError(t, err)
	return user
}

func seedAuction(t *testing.T, charityID string, status string) types.Auction {
	t.Helper()
	var itemID string
	err := testDB.QueryRow(
		`INSERT INTO items (charity_id, name) VALUES ($1, 'Signed jersey') RETURNING id`,
		charityID).Scan(&itemID)
	require.NoError(t, err)

	auction, err := testSvc.CreateAuction(context.Background(), types.Auction{
		CharityID:       charityID,
		ItemID:          itemID,
		Name:            "Signed jersey",
		OpeningBidValue: 100,
		BidIncrement:    10,
		Currency:        "USD",
		Status:          status,
		TopBidDuration:  300,
	})
	require.NoError(t, err)
	return auction
}

func seedPendingBid(t *testing.T, auction types.Auction, bidder types.User, amount int) types.Bid {
	t.Helper()
	bid, err := testSvc.CreateBid(context.Background(), types.Bid{
		ID:        uuid.NewString(),
		AuctionID: auction.ID,
		BidderID:  bidder.ID,
		CharityID: auction.CharityID,
		Amount:    amount,
	})
	require.NoError(t, err)
	return bid
}

func TestHealth(t *testing.T) {
	stats := testSvc.Health()
	assert.Equal(t, "up", stats["status"])
	assert.NotContains(t, stats, "error")
}

func TestLockIsInsertMutex(t *testing.T) {
	ctx := context.Background()
	charityID := seedCharity(t)
	alice := seedUser(t, types.RoleBidder)
	bob := seedUser(t, types.RoleBidder)
	auction := seedAuction(t, charityID, types.AuctionActive)

	lock := types.BidLock{
		AuctionID: auction.ID,
		BidderID:  alice.ID,
		BidID:     uuid.NewString(),
		ExpiresAt: time.Now().Add(90 * time.Second),
	}
	require.NoError(t, testSvc.AcquireLock(ctx, lock))

	err := testSvc.AcquireLock(ctx, types.BidLock{
		AuctionID: auction.ID,
		BidderID:  bob.ID,
		BidID:     uuid.NewString(),
		ExpiresAt: time.Now().Add(90 * time.Second),
	})
	assert.ErrorIs(t, err, apperrors.ErrLockHeld)

	require.NoError(t, testSvc.ReleaseLock(ctx, auction.ID))
	// releasing again is a no-op
	require.NoError(t, testSvc.ReleaseLock(ctx, auction.ID))

	lock.BidderID = bob.ID
	require.NoError(t, testSvc.AcquireLock(ctx, lock))
	require.NoError(t, testSvc.ReleaseLock(ctx, auction.ID))
}

func TestOnePendingBidPerAuction(t *testing.T) {
	ctx := context.Background()
	charityID := seedCharity(t)
	alice := seedUser(t, types.RoleBidder)
	bob := seedUser(t, types.RoleBidder)
	auction := seedAuction(t, charityID, types.AuctionActive)

	seedPendingBid(t, auction, alice, 100)

	_, err := testSvc.CreateBid(ctx, types.Bid{
		ID:        uuid.NewString(),
		AuctionID: auction.ID,
		BidderID:  bob.ID,
		CharityID: auction.CharityID,
		Amount:    100,
	})
	assert.ErrorIs(t, err, apperrors.ErrLockHeld)
}

func TestFinalizeBid(t *testing.T) {
	ctx := context.Background()
	charityID := seedCharity(t)
	alice := seedUser(t, types.RoleBidder)
	auction := seedAuction(t, charityID, types.AuctionActive)
	bid := seedPendingBid(t, auction, alice, 100)

	ts := time.Now()
	done, err := testSvc.FinalizeBid(ctx, FinalizeParams{
		BidID:           bid.ID,
		AuctionID:       auction.ID,
		BidderID:        alice.ID,
		Amount:          100,
		ExpectedHighBid: 0,
		Timestamp:       ts,
	})
	require.NoError(t, err)
	assert.Equal(t, types.BidComplete, done.Status)

	updated, err := testSvc.GetAuctionByID(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, updated.HighBidValue)
	require.NotNil(t, updated.LatestBidderID)
	assert.Equal(t, alice.ID, *updated.LatestBidderID)
	assert.Equal(t, 1, updated.BiddersCount)
}

func TestFinalizeBidStaleRollsBack(t *testing.T) {
	ctx := context.Background()
	charityID := seedCharity(t)
	alice := seedUser(t, types.RoleBidder)
	auction := seedAuction(t, charityID, types.AuctionActive)
	bid := seedPendingBid(t, auction, alice, 100)

	_, err := testSvc.FinalizeBid(ctx, FinalizeParams{
		BidID:           bid.ID,
		AuctionID:       auction.ID,
		BidderID:        alice.ID,
		Amount:          100,
		ExpectedHighBid: 40,
		Timestamp:       time.Now(),
	})
	assert.ErrorIs(t, err, apperrors.ErrStaleAuction)

	// the whole transaction rolled back: ledger row still PENDING
	reloaded, err := testSvc.GetBidByID(ctx, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BidPending, reloaded.Status)
}

func TestFinalizeBidTwiceRejected(t *testing.T) {
	ctx := context.Background()
	charityID := seedCharity(t)
	alice := seedUser(t, types.RoleBidder)
	auction := seedAuction(t, charityID, types.AuctionActive)
	bid := seedPendingBid(t, auction, alice, 100)

	params := FinalizeParams{
		BidID:           bid.ID,
		AuctionID:       auction.ID,
		BidderID:        alice.ID,
		Amount:          100,
		ExpectedHighBid: 0,
		Timestamp:       time.Now(),
	}
	_, err := testSvc.FinalizeBid(ctx, params)
	require.NoError(t, err)

	_, err = testSvc.FinalizeBid(ctx, params)
	assert.ErrorIs(t, err, apperrors.ErrBidFinalized)
}

func TestFinalizeBidUnknownAuction(t *testing.T) {
	ctx := context.Background()
	charityID := seedCharity(t)
	alice := seedUser(t, types.RoleBidder)
	auction := seedAuction(t, charityID, types.AuctionActive)
	bid := seedPendingBid(t, auction, alice, 100)

	_, err := testSvc.FinalizeBid(ctx, FinalizeParams{
		BidID:           bid.ID,
		AuctionID:       uuid.NewString(),
		BidderID:        alice.ID,
		Amount:          100,
		ExpectedHighBid: 0,
		Timestamp:       time.Now(),
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLatestBid(t *testing.T) {
	ctx := context.Background()
	charityID := seedCharity(t)
	alice := seedUser(t, types.RoleBidder)
	bob := seedUser(t, types.RoleBidder)
	auction := seedAuction(t, charityID, types.AuctionActive)

	_, err := testSvc.LatestBid(ctx, auction.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	first := seedPendingBid(t, auction, alice, 100)
	_, err = testSvc.FinalizeBid(ctx, FinalizeParams{
		BidID: first.ID, AuctionID: auction.ID, BidderID: alice.ID,
		Amount: 100, ExpectedHighBid: 0, Timestamp: time.Now(),
	})
	require.NoError(t, err)

	second := seedPendingBid(t, auction, bob, 110)

	latest, err := testSvc.LatestBid(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, 110, latest.Amount)
	assert.Equal(t, types.BidPending, latest.Status)
}

func TestCancelBidGuardsTerminalStates(t *testing.T) {
	ctx := context.Background()
	charityID := seedCharity(t)
	alice := seedUser(t, types.RoleBidder)
	auction := seedAuction(t, charityID, types.AuctionActive)
	bid := seedPendingBid(t, auction, alice, 100)

	cancelled, err := testSvc.CancelBid(ctx, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BidCancelled, cancelled.Status)

	_, err = testSvc.CancelBid(ctx, bid.ID)
	assert.ErrorIs(t, err, apperrors.ErrBidFinalized)
}

func TestFreeBidSingleRedemption(t *testing.T) {
	ctx := context.Background()
	charityID := seedCharity(t)
	admin := seedUser(t, types.RoleCharityAdmin)
	alice := seedUser(t, types.RoleBidder)
	auction := seedAuction(t, charityID, types.AuctionActive)

	freeBid, err := testSvc.GrantFreeBid(ctx, types.FreeBid{
		UserID:    alice.ID,
		AuctionID: auction.ID,
		GrantedBy: admin.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, types.FreeBidAvailable, freeBid.Status)

	bid := seedPendingBid(t, auction, alice, 100)
	_, err = testSvc.FinalizeBid(ctx, FinalizeParams{
		BidID:           bid.ID,
		AuctionID:       auction.ID,
		BidderID:        alice.ID,
		Amount:          100,
		ExpectedHighBid: 0,
		Timestamp:       time.Now(),
		FreeBidID:       freeBid.ID,
	})
	require.NoError(t, err)

	// second redemption of the same credit fails and rolls the bid back
	second := seedPendingBid(t, auction, alice, 110)
	_, err = testSvc.FinalizeBid(ctx, FinalizeParams{
		BidID:           second.ID,
		AuctionID:       auction.ID,
		BidderID:        alice.ID,
		Amount:          110,
		ExpectedHighBid: 100,
		Timestamp:       time.Now(),
		FreeBidID:       freeBid.ID,
	})
	assert.ErrorIs(t, err, apperrors.ErrFreeBidRedeemed)

	reloaded, err := testSvc.GetBidByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BidPending, reloaded.Status)
}

func TestExpiredLocks(t *testing.T) {
	ctx := context.Background()
	charityID := seedCharity(t)
	alice := seedUser(t, types.RoleBidder)
	expired := seedAuction(t, charityID, types.AuctionActive)
	live := seedAuction(t, charityID, types.AuctionActive)

	require.NoError(t, testSvc.AcquireLock(ctx, types.BidLock{
		AuctionID: expired.ID,
		BidderID:  alice.ID,
		BidID:     uuid.NewString(),
		ExpiresAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, testSvc.AcquireLock(ctx, types.BidLock{
		AuctionID: live.ID,
		BidderID:  alice.ID,
		BidID:     uuid.NewString(),
		ExpiresAt: time.Now().Add(time.Minute),
	}))

	locks, err := testSvc.ExpiredLocks(ctx, time.Now())
	require.NoError(t, err)

	ids := make([]string, 0, len(locks))
	for _, lock := range locks {
		ids = append(ids, lock.AuctionID)
	}
	assert.Contains(t, ids, expired.ID)
	assert.NotContains(t, ids, live.ID)
}

func TestUnchallengedAuctions(t *testing.T) {
	ctx := context.Background()
	charityID := seedCharity(t)
	alice := seedUser(t, types.RoleBidder)
	stale := seedAuction(t, charityID, types.AuctionActive)
	fresh := seedAuction(t, charityID, types.AuctionActive)

	staleBid := seedPendingBid(t, stale, alice, 100)
	_, err := testSvc.FinalizeBid(ctx, FinalizeParams{
		BidID: staleBid.ID, AuctionID: stale.ID, BidderID: alice.ID,
		Amount: 100, ExpectedHighBid: 0,
		Timestamp: time.Now().Add(-10 * time.Minute),
	})
	require.NoError(t, err)

	freshBid := seedPendingBid(t, fresh, alice, 100)
	_, err = testSvc.FinalizeBid(ctx, FinalizeParams{
		BidID: freshBid.ID, AuctionID: fresh.ID, BidderID: alice.ID,
		Amount: 100, ExpectedHighBid: 0,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	due, err := testSvc.UnchallengedAuctions(ctx, time.Now())
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, auction := range due {
		ids = append(ids, auction.ID)
	}
	assert.Contains(t, ids, stale.ID)
	assert.NotContains(t, ids, fresh.ID)
}

func TestCommentsRoundTrip(t *testing.T) {
	ctx := context.Background()
	charityID := seedCharity(t)
	alice := seedUser(t, types.RoleBidder)
	auction := seedAuction(t, charityID, types.AuctionActive)

	created, err := testSvc.CreateComment(ctx, types.Comment{
		AuctionID: auction.ID,
		UserID:    alice.ID,
		UserName:  alice.Name,
		Body:      "What a great cause!",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	comments, err := testSvc.CommentsForAuction(ctx, auction.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "What a great cause!", comments[0].Body)
}

func TestInsertBidEventIdempotent(t *testing.T) {
	ctx := context.Background()
	event := types.BidEvent{
		EventID:   uuid.NewString(),
		AuctionID: uuid.NewString(),
		BidID:     uuid.NewString(),
		BidderID:  uuid.NewString(),
		Amount:    100,
		Status:    types.BidComplete,
		Timestamp: time.Now(),
	}
	require.NoError(t, testSvc.InsertBidEvent(ctx, event))
	// redelivery of the same event is absorbed
	require.NoError(t, testSvc.InsertBidEvent(ctx, event))

	var count int
	require.NoError(t, testDB.QueryRow(
		`SELECT count(*) FROM bid_events WHERE event_id = $1`, event.EventID).Scan(&count))
	assert.Equal(t, 1, count)
}
