package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// CreateProduct inserts a new product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (title, description, price, total_stock)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, product, query,
		product.Title, product.Description, product.Price, product.TotalStock)
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves products, optionally including archived ones
func (s *Store) ListProducts(ctx context.Context, includeArchived bool) ([]models.Product, error) {
	var products []models.Product
	query := "SELECT * FROM products ORDER BY id"
	if !includeArchived {
		query = "SELECT * FROM products WHERE is_archived = FALSE ORDER BY id"
	}
	err := s.db.SelectContext(ctx, &products, query)
	return products, err
}

// SetProductArchived flips the soft-delete flag on a product
func (s *Store) SetProductArchived(ctx context.Context, id int64, archived bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET is_archived = $1, updated_at = NOW() WHERE id = $2",
		archived, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// ReserveStock atomically decrements stock. The WHERE clause carries the
// stock check so two concurrent reservations cannot both win on the last
// units; the row lock taken by UPDATE serializes them.
func (s *Store) ReserveStock(ctx context.Context, productID int64, qty int) (int, error) {
	var newStock int
	err := s.db.GetContext(ctx, &newStock, `
		UPDATE products
		SET total_stock = total_stock - $2, updated_at = NOW()
		WHERE id = $1 AND is_archived = FALSE AND total_stock >= $2
		RETURNING total_stock`,
		productID, qty)
	if err == nil {
		return newStock, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	// Distinguish a missing/archived product from an insufficient one.
	var exists bool
	err = s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM products WHERE id = $1 AND is_archived = FALSE)", productID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("product %d: %w", productID, models.ErrNotFound)
	}
	return 0, fmt.Errorf("product %d: %w", productID, models.ErrInsufficientStock)
}

// RestoreStock atomically increments stock and returns the new level
func (s *Store) RestoreStock(ctx context.Context, productID int64, qty int) (int, error) {
	var newStock int
	err := s.db.GetContext(ctx, &newStock, `
		UPDATE products
		SET total_stock = total_stock + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING total_stock`,
		productID, qty)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("product %d: %w", productID, models.ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return newStock, nil
}

// RestoreStockLines restores every order line inside a single transaction.
// Either all lines apply or none do.
func (s *Store) RestoreStockLines(ctx context.Context, lines []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, line := range lines {
		res, err := tx.ExecContext(ctx,
			"UPDATE products SET total_stock = total_stock + $1, updated_at = NOW() WHERE id = $2",
			line.Quantity, line.ProductID)
		if err != nil {
			return fmt.Errorf("failed to restore stock for product %d: %w", line.ProductID, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("product %d: %w", line.ProductID, models.ErrNotFound)
		}
	}

	return tx.Commit()
}

// AcquireProductLock grants the edit lease with a single test-and-set update.
// It succeeds when the product is unlocked, the lease has expired, or the
// caller already holds it (refresh). There is no window between check and
// grant: both happen in the same statement.
func (s *Store) AcquireProductLock(ctx context.Context, productID int64, holderID, holderName string, now, expiry time.Time) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, `
		UPDATE products
		SET is_locked = TRUE, locked_by = $2, locked_by_name = $3,
		    locked_at = $4, lock_expiry = $5, updated_at = NOW()
		WHERE id = $1
		  AND (is_locked = FALSE OR lock_expiry < $4 OR locked_by = $2)
		RETURNING *`,
		productID, holderID, holderName, now, expiry)
	if err == nil {
		return &product, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	current, err := s.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	conflict := &models.LockConflictError{ProductID: productID}
	if current.LockedBy != nil {
		conflict.HolderID = *current.LockedBy
	}
	if current.LockedByName != nil {
		conflict.HolderName = *current.LockedByName
	}
	if current.LockExpiry != nil {
		conflict.Expiry = *current.LockExpiry
	}
	return nil, conflict
}

// ReleaseProductLock clears the lease, holder-checked
func (s *Store) ReleaseProductLock(ctx context.Context, productID int64, holderID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET is_locked = FALSE, locked_by = NULL, locked_by_name = NULL,
		    locked_at = NULL, lock_expiry = NULL, updated_at = NOW()
		WHERE id = $1 AND is_locked = TRUE AND locked_by = $2`,
		productID, holderID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	current, err := s.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}
	if !current.IsLocked {
		return fmt.Errorf("product %d: %w", productID, models.ErrNotLocked)
	}
	return fmt.Errorf("product %d: %w", productID, models.ErrNotLockHolder)
}

// UpdateProductLocked commits a product edit and releases the lease in the
// same statement. The lease check rides in the WHERE clause, so an expired or
// stolen lease makes the edit a no-op rather than a lost-update hazard.
func (s *Store) UpdateProductLocked(ctx context.Context, product *models.Product, holderID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET title = $2, description = $3, price = $4, total_stock = $5,
		    is_locked = FALSE, locked_by = NULL, locked_by_name = NULL,
		    locked_at = NULL, lock_expiry = NULL, updated_at = NOW()
		WHERE id = $1 AND is_locked = TRUE AND locked_by = $6 AND lock_expiry >= $7`,
		product.ID, product.Title, product.Description, product.Price, product.TotalStock,
		holderID, now)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	current, err := s.GetProductByID(ctx, product.ID)
	if err != nil {
		return err
	}
	if !current.IsLocked || current.LockExpired(now) {
		return fmt.Errorf("product %d: %w", product.ID, models.ErrNotLocked)
	}
	return fmt.Errorf("product %d: %w", product.ID, models.ErrNotLockHolder)
}
