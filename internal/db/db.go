package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/goali/auctions/internal/auction"
	"github.com/goali/auctions/internal/auth"
	"github.com/goali/auctions/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const auctionColumns = "id, title, description, image_url, owner_id, start_time, end_time, current_bid, highest_bidder_id, created_at"

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

func scanAuction(row pgx.Row) (*models.AuctionItem, error) {
	item := &models.AuctionItem{}
	err := row.Scan(&item.ID, &item.Title, &item.Description, &item.ImageURL, &item.OwnerID,
		&item.StartTime, &item.EndTime, &item.CurrentPrice, &item.HighestBidderID, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// CreateAuction inserts a new auction item
func (db *DB) CreateAuction(ctx context.Context, item *models.AuctionItem) (*models.AuctionItem, error) {
	if !item.StartTime.Before(item.EndTime) {
		return nil, fmt.Errorf("end_time must be after start_time")
	}

	created, err := scanAuction(db.Pool.QueryRow(ctx,
		"INSERT INTO auction_items (id, title, description, image_url, owner_id, start_time, end_time, current_bid) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING "+auctionColumns,
		item.ID, item.Title, item.Description, item.ImageURL, item.OwnerID, item.StartTime, item.EndTime, item.CurrentPrice))
	if err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}
	return created, nil
}

// GetAuction retrieves an auction item by id
func (db *DB) GetAuction(ctx context.Context, id uuid.UUID) (*models.AuctionItem, error) {
	item, err := scanAuction(db.Pool.QueryRow(ctx,
		"SELECT "+auctionColumns+" FROM auction_items WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auction.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return item, nil
}

// ListAuctions retrieves all auction items, newest first
func (db *DB) ListAuctions(ctx context.Context) ([]models.AuctionItem, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+auctionColumns+" FROM auction_items ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	items := []models.AuctionItem{}
	for rows.Next() {
		item, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ListBids retrieves the bid ledger of an auction, newest first
func (db *DB) ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, item_id, user_id, amount, bid_time FROM bids WHERE item_id = $1 ORDER BY bid_time DESC, amount DESC",
		auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	bids := []models.Bid{}
	for rows.Next() {
		var bid models.Bid
		if err := rows.Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Amount, &bid.BidTime); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bids, nil
}

// AdmitBid advances the price with a compare-and-swap on current_bid and
// appends the bid in the same transaction
func (db *DB) AdmitBid(ctx context.Context, bid models.Bid, expected float64) (bool, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The window check rides on the same statement so a bid cannot land after end_time.
	// It is judged at bid.BidTime, the instance clock that Classify used, not the database's now().
	tag, err := tx.Exec(ctx,
		"UPDATE auction_items SET current_bid = $1, highest_bidder_id = $2 "+
			"WHERE id = $3 AND current_bid = $4 AND start_time <= $5 AND end_time > $5",
		bid.Amount, bid.BidderID, bid.AuctionID, expected, bid.BidTime)
	if err != nil {
		return false, fmt.Errorf("failed to update price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO bids (id, item_id, user_id, amount, bid_time) VALUES ($1, $2, $3, $4, $5)",
		bid.ID, bid.AuctionID, bid.BidderID, bid.Amount, bid.BidTime)
	if err != nil {
		return false, fmt.Errorf("failed to record bid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// DeleteAuction removes an auction; its bids go with it through ON DELETE CASCADE
func (db *DB) DeleteAuction(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, "DELETE FROM auction_items WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auction.ErrAuctionNotFound
	}
	return nil
}

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	created := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (id, email, full_name, role, password_hash) VALUES ($1, $2, $3, $4, $5) "+
			"RETURNING id, email, full_name, role, password_hash, created_at",
		user.ID, user.Email, user.FullName, user.Role, user.PasswordHash).Scan(
		&created.ID, &created.Email, &created.FullName, &created.Role, &created.PasswordHash, &created.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, auth.ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return created, nil
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, email, full_name, role, password_hash, created_at FROM users WHERE "+where, arg).Scan(
		&user.ID, &user.Email, &user.FullName, &user.Role, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUser(ctx, "lower(email) = lower($1)", email)
}

// GetUserByID retrieves a user by id
func (db *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return db.getUser(ctx, "id = $1", id)
}

// ListUsers retrieves all users, newest first
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, email, full_name, role, password_hash, created_at FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUserRole changes a user's role
func (db *DB) UpdateUserRole(ctx context.Context, id uuid.UUID, role string) error {
	tag, err := db.Pool.Exec(ctx, "UPDATE users SET role = $1 WHERE id = $2", role, id)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}
