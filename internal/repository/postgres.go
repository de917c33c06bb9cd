// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/grocermart-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrShopNotFound возвращается, если магазин не найден.
	ErrShopNotFound = errors.New("shop not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrPantryItemNotFound возвращается, если запись запаса не найдена.
	ErrPantryItemNotFound = errors.New("pantry item not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrNotificationNotFound возвращается, если уведомление не найдено или принадлежит другому пользователю.
	ErrNotificationNotFound = errors.New("notification not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при сериализационных сбоях, дедлоках и сетевых ошибках.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя с указанной ролью.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role, phone string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, role, phone) VALUES ($1, $2, $3, $4) RETURNING id`,
		login, passwordHash, string(role), phone,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, phone, fcm_token, created_at FROM users WHERE login = $1`,
		login,
	)
	return r.scanUser(ctx, row)
}

// GetUserByID возвращает пользователя по идентификатору вместе со списком подписок.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, phone, fcm_token, created_at FROM users WHERE id = $1`,
		id,
	)
	return r.scanUser(ctx, row)
}

func (r *PostgresRepository) scanUser(ctx context.Context, row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &role, &u.Phone, &u.FCMToken, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)

	rows, err := r.pool.Query(ctx,
		`SELECT shop_id FROM subscriptions WHERE user_id = $1 ORDER BY created_at`,
		u.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("select subscriptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var shopID int64
		if err := rows.Scan(&shopID); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		u.Subscriptions = append(u.Subscriptions, shopID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &u, nil
}

// SetFCMToken сохраняет push-токен устройства пользователя.
func (r *PostgresRepository) SetFCMToken(ctx context.Context, userID int64, token string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE users SET fcm_token = $2 WHERE id = $1`,
		userID, token,
	)
	if err != nil {
		return fmt.Errorf("set fcm token: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateSubscriptions заменяет список подписок пользователя на магазины.
func (r *PostgresRepository) UpdateSubscriptions(ctx context.Context, userID int64, shopIDs []int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `DELETE FROM subscriptions WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("delete subscriptions: %w", err)
		}

		for _, shopID := range shopIDs {
			_, err := tx.Exec(ctx,
				`INSERT INTO subscriptions (user_id, shop_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				userID, shopID,
			)
			if err != nil {
				return fmt.Errorf("insert subscription: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// CreateShop создаёт магазин и возвращает его идентификатор.
func (r *PostgresRepository) CreateShop(ctx context.Context, shop model.Shop) (int64, error) {
	var lng, lat *float64
	if shop.Location.Coordinates != nil {
		lng = &shop.Location.Coordinates.Longitude
		lat = &shop.Location.Coordinates.Latitude
	}

	radius := shop.DeliveryRadiusKm
	if radius <= 0 {
		radius = 5
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO shops (owner_id, name, phone, address, city, pincode, longitude, latitude, delivery_radius_km)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		shop.OwnerID, shop.Name, shop.Phone,
		shop.Location.Address, shop.Location.City, shop.Location.Pincode,
		lng, lat, radius,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create shop: %w", err)
	}
	return id, nil
}

const shopColumns = `id, owner_id, name, phone, address, city, pincode, longitude, latitude, delivery_radius_km, created_at`

func scanShop(row pgx.Row) (model.Shop, error) {
	var s model.Shop
	var lng, lat *float64
	err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Phone,
		&s.Location.Address, &s.Location.City, &s.Location.Pincode,
		&lng, &lat, &s.DeliveryRadiusKm, &s.CreatedAt)
	if err != nil {
		return model.Shop{}, err
	}
	if lng != nil && lat != nil {
		s.Location.Coordinates = &model.Coordinates{Longitude: *lng, Latitude: *lat}
	}
	return s, nil
}

// GetShops возвращает полный список магазинов.
func (r *PostgresRepository) GetShops(ctx context.Context) ([]model.Shop, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+shopColumns+` FROM shops ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select shops: %w", err)
	}
	defer rows.Close()

	var res []model.Shop
	for rows.Next() {
		s, err := scanShop(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shop: %w", err)
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetShopByID возвращает магазин по идентификатору.
func (r *PostgresRepository) GetShopByID(ctx context.Context, id int64) (*model.Shop, error) {
	s, err := scanShop(r.pool.QueryRow(ctx,
		`SELECT `+shopColumns+` FROM shops WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShopNotFound
		}
		return nil, fmt.Errorf("get shop: %w", err)
	}
	return &s, nil
}

// GetShopByOwner возвращает магазин, принадлежащий указанному пользователю.
func (r *PostgresRepository) GetShopByOwner(ctx context.Context, ownerID int64) (*model.Shop, error) {
	s, err := scanShop(r.pool.QueryRow(ctx,
		`SELECT `+shopColumns+` FROM shops WHERE owner_id = $1 ORDER BY id LIMIT 1`, ownerID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShopNotFound
		}
		return nil, fmt.Errorf("get shop by owner: %w", err)
	}
	return &s, nil
}

// CreateProduct добавляет товар в ассортимент магазина.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (shop_id, name, brand, quantity_per_pack, unit, price_cents)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		p.ShopID, p.Name, p.Brand, p.QuantityPerPack, p.Unit, int64(p.Price*100),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

func scanProduct(row pgx.Row) (model.Product, error) {
	var p model.Product
	var priceCents int64
	err := row.Scan(&p.ID, &p.ShopID, &p.Name, &p.Brand, &p.QuantityPerPack, &p.Unit, &priceCents, &p.CreatedAt)
	if err != nil {
		return model.Product{}, err
	}
	p.Price = float64(priceCents) / 100
	return p, nil
}

// GetProductByID возвращает товар по идентификатору.
func (r *PostgresRepository) GetProductByID(ctx context.Context, id int64) (*model.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx,
		`SELECT id, shop_id, name, brand, quantity_per_pack, unit, price_cents, created_at
		 FROM products WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// GetProducts возвращает товары. При shopID > 0 выборка ограничивается одним магазином.
func (r *PostgresRepository) GetProducts(ctx context.Context, shopID int64) ([]model.Product, error) {
	query := `SELECT id, shop_id, name, brand, quantity_per_pack, unit, price_cents, created_at
		 FROM products`
	args := []any{}
	if shopID > 0 {
		query += ` WHERE shop_id = $1`
		args = append(args, shopID)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var res []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// UpdateProduct обновляет данные товара.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p model.Product) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE products SET name = $2, brand = $3, quantity_per_pack = $4, unit = $5, price_cents = $6
		 WHERE id = $1`,
		p.ID, p.Name, p.Brand, p.QuantityPerPack, p.Unit, int64(p.Price*100),
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DeleteProduct удаляет товар из ассортимента.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// CreatePantryItem создаёт запись отслеживаемого запаса.
func (r *PostgresRepository) CreatePantryItem(ctx context.Context, item model.PantryItem) (int64, error) {
	status := item.Status
	if status == "" {
		status = model.PantryStatusStocked
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO pantry_items (user_id, shop_id, product_id, product_name, brand_name, quantity_per_pack, unit, packs_owned, price_cents, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		item.UserID, item.ShopID, item.ProductID, item.ProductName, item.BrandName,
		item.QuantityPerPack, item.Unit, item.PacksOwned, int64(item.Price*100), string(status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create pantry item: %w", err)
	}
	return id, nil
}

const pantryColumns = `id, user_id, shop_id, product_id, product_name, brand_name, quantity_per_pack, unit, packs_owned, price_cents, status, last_refilled, created_at`

func scanPantryItem(row pgx.Row) (model.PantryItem, error) {
	var item model.PantryItem
	var priceCents int64
	var status string
	err := row.Scan(&item.ID, &item.UserID, &item.ShopID, &item.ProductID,
		&item.ProductName, &item.BrandName, &item.QuantityPerPack, &item.Unit,
		&item.PacksOwned, &priceCents, &status, &item.LastRefilled, &item.CreatedAt)
	if err != nil {
		return model.PantryItem{}, err
	}
	item.Price = float64(priceCents) / 100
	item.Status = model.PantryStatus(status)
	return item, nil
}

// GetPantryItemByID возвращает запись запаса по идентификатору.
func (r *PostgresRepository) GetPantryItemByID(ctx context.Context, id int64) (*model.PantryItem, error) {
	item, err := scanPantryItem(r.pool.QueryRow(ctx,
		`SELECT `+pantryColumns+` FROM pantry_items WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPantryItemNotFound
		}
		return nil, fmt.Errorf("get pantry item: %w", err)
	}
	return &item, nil
}

// GetPantryByUser возвращает все записи запасов пользователя.
func (r *PostgresRepository) GetPantryByUser(ctx context.Context, userID int64) ([]model.PantryItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+pantryColumns+` FROM pantry_items WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select pantry items: %w", err)
	}
	defer rows.Close()

	var res []model.PantryItem
	for rows.Next() {
		item, err := scanPantryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pantry item: %w", err)
		}
		res = append(res, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// UpdatePantryState обновляет статус записи запаса и, при необходимости,
// количество упаковок и отметку последнего пополнения.
func (r *PostgresRepository) UpdatePantryState(ctx context.Context, id int64, status model.PantryStatus, packsOwned *int, lastRefilled *time.Time) error {
	query := `UPDATE pantry_items SET status = $2`
	args := []any{id, string(status)}

	if packsOwned != nil {
		args = append(args, *packsOwned)
		query += fmt.Sprintf(`, packs_owned = $%d`, len(args))
	}
	if lastRefilled != nil {
		args = append(args, *lastRefilled)
		query += fmt.Sprintf(`, last_refilled = $%d`, len(args))
	}
	query += ` WHERE id = $1`

	cmdTag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update pantry item: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPantryItemNotFound
	}
	return nil
}

// DeletePantryItem удаляет запись запаса без возможности восстановления.
func (r *PostgresRepository) DeletePantryItem(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM pantry_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pantry item: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPantryItemNotFound
	}
	return nil
}

// GetRefillRequestsByShop возвращает записи запасов, относящиеся к магазину.
// Пустой набор статусов означает выборку без ограничения.
func (r *PostgresRepository) GetRefillRequestsByShop(ctx context.Context, shopID int64, statuses []model.PantryStatus) ([]model.PantryItem, error) {
	query := `SELECT ` + pantryColumns + ` FROM pantry_items WHERE shop_id = $1`
	args := []any{shopID}

	if len(statuses) > 0 {
		strs := make([]string, len(statuses))
		for i, s := range statuses {
			strs[i] = string(s)
		}
		args = append(args, strs)
		query += fmt.Sprintf(` AND status = ANY($%d)`, len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select refill requests: %w", err)
	}
	defer rows.Close()

	var res []model.PantryItem
	for rows.Next() {
		item, err := scanPantryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refill request: %w", err)
		}
		res = append(res, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateOrders сохраняет набор заказов одной транзакцией и возвращает их с идентификаторами.
func (r *PostgresRepository) CreateOrders(ctx context.Context, orders []model.Order) ([]model.Order, error) {
	res := make([]model.Order, len(orders))

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		for i, o := range orders {
			addr, err := json.Marshal(o.DeliveryAddress)
			if err != nil {
				return fmt.Errorf("marshal delivery address: %w", err)
			}

			var id int64
			var orderDate time.Time
			err = tx.QueryRow(ctx,
				`INSERT INTO orders (customer_id, shop_id, total_cents, status, delivery_address, customer_contact)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 RETURNING id, order_date`,
				o.CustomerID, o.ShopID, int64(o.TotalAmount*100), string(o.Status), addr, o.CustomerContact,
			).Scan(&id, &orderDate)
			if err != nil {
				return fmt.Errorf("insert order: %w", err)
			}

			for _, it := range o.Items {
				_, err := tx.Exec(ctx,
					`INSERT INTO order_items (order_id, product_id, name, price_cents, quantity)
					 VALUES ($1, $2, $3, $4, $5)`,
					id, it.ProductID, it.Name, int64(it.Price*100), it.Quantity,
				)
				if err != nil {
					return fmt.Errorf("insert order item: %w", err)
				}
			}

			res[i] = o
			res[i].ID = id
			res[i].OrderDate = orderDate
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

const orderColumns = `id, customer_id, shop_id, total_cents, status, delivery_address, customer_contact, order_date, delivery_date`

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var totalCents int64
	var status string
	var addr []byte
	err := row.Scan(&o.ID, &o.CustomerID, &o.ShopID, &totalCents, &status,
		&addr, &o.CustomerContact, &o.OrderDate, &o.DeliveryDate)
	if err != nil {
		return model.Order{}, err
	}
	o.TotalAmount = float64(totalCents) / 100
	o.Status = model.OrderStatus(status)
	if len(addr) > 0 {
		if err := json.Unmarshal(addr, &o.DeliveryAddress); err != nil {
			return model.Order{}, fmt.Errorf("unmarshal delivery address: %w", err)
		}
	}
	return o, nil
}

// GetOrderByID возвращает заказ вместе с позициями.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := r.loadOrderItems(ctx, map[int64]*model.Order{o.ID: &o}); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOrdersByCustomer возвращает заказы покупателя, новые первыми.
func (r *PostgresRepository) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	return r.getOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY order_date DESC, id DESC`,
		customerID,
	)
}

// GetOrdersByShop возвращает заказы магазина, новые первыми.
func (r *PostgresRepository) GetOrdersByShop(ctx context.Context, shopID int64) ([]model.Order, error) {
	return r.getOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE shop_id = $1 ORDER BY order_date DESC, id DESC`,
		shopID,
	)
}

func (r *PostgresRepository) getOrders(ctx context.Context, query string, arg any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	byID := make(map[int64]*model.Order, len(res))
	for i := range res {
		byID[res[i].ID] = &res[i]
	}
	if err := r.loadOrderItems(ctx, byID); err != nil {
		return nil, err
	}

	return res, nil
}

func (r *PostgresRepository) loadOrderItems(ctx context.Context, orders map[int64]*model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	for id := range orders {
		ids = append(ids, id)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT order_id, product_id, name, price_cents, quantity FROM order_items WHERE order_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID int64
		var it model.OrderItem
		var priceCents int64
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &priceCents, &it.Quantity); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		it.Price = float64(priceCents) / 100
		if o, ok := orders[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

// UpdateOrderStatus обновляет статус заказа и, при доставке, дату доставки.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, deliveryDate *time.Time) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2, delivery_date = COALESCE($3, delivery_date) WHERE id = $1`,
		id, string(status), deliveryDate,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// CreateNotification сохраняет уведомление для последующей отправки.
func (r *PostgresRepository) CreateNotification(ctx context.Context, n model.Notification) (int64, error) {
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}
	if n.Metadata == nil {
		meta = []byte(`{}`)
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO notifications (user_id, title, message, metadata) VALUES ($1, $2, $3, $4) RETURNING id`,
		n.UserID, n.Title, n.Message, meta,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create notification: %w", err)
	}
	return id, nil
}

const notificationColumns = `id, user_id, title, message, is_read, metadata, dispatched, created_at`

func scanNotification(row pgx.Row) (model.Notification, error) {
	var n model.Notification
	var meta []byte
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.IsRead, &meta, &n.Dispatched, &n.CreatedAt)
	if err != nil {
		return model.Notification{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return model.Notification{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return n, nil
}

// GetNotificationsByUser возвращает уведомления пользователя, новые первыми.
func (r *PostgresRepository) GetNotificationsByUser(ctx context.Context, userID int64) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	var res []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CountUnreadNotifications возвращает число непрочитанных уведомлений пользователя.
func (r *PostgresRepository) CountUnreadNotifications(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// MarkNotificationRead помечает уведомление прочитанным. Чужое уведомление
// для получателя неотличимо от несуществующего.
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, id, userID int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// DeleteNotification удаляет уведомление получателя.
func (r *PostgresRepository) DeleteNotification(ctx context.Context, id, userID int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// UndispatchedNotification описывает уведомление, ожидающее отправки, вместе
// с push-токеном получателя.
type UndispatchedNotification struct {
	Notification model.Notification
	FCMToken     string
}

// GetUndispatchedNotifications возвращает неотправленные уведомления с id больше
// afterID. Монотонный курсор исключает повторную отправку при пересечении циклов.
func (r *PostgresRepository) GetUndispatchedNotifications(ctx context.Context, afterID int64, limit int) ([]UndispatchedNotification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT n.id, n.user_id, n.title, n.message, n.is_read, n.metadata, n.dispatched, n.created_at, u.fcm_token
		 FROM notifications n
		 JOIN users u ON u.id = n.user_id
		 WHERE NOT n.dispatched AND n.id > $1
		 ORDER BY n.id
		 LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select undispatched: %w", err)
	}
	defer rows.Close()

	var res []UndispatchedNotification
	for rows.Next() {
		var n model.Notification
		var meta []byte
		var token string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.IsRead, &meta, &n.Dispatched, &n.CreatedAt, &token); err != nil {
			return nil, fmt.Errorf("scan undispatched: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &n.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		res = append(res, UndispatchedNotification{Notification: n, FCMToken: token})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// MarkNotificationsDispatched помечает уведомления отправленными.
func (r *PostgresRepository) MarkNotificationsDispatched(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE notifications SET dispatched = TRUE WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	return nil
}
