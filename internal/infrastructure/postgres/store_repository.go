package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/janssengh/ouvirtiba/internal/domain/entity"
	"github.com/janssengh/ouvirtiba/internal/domain/repository"
)

var (
	_ repository.StoreRepository   = (*StoreRepo)(nil)
	_ repository.ClientRepository  = (*ClientRepo)(nil)
	_ repository.ProductRepository = (*ProductRepo)(nil)
	_ repository.OrderRepository   = (*OrderRepo)(nil)
)

// ── Tienda (emitente) ─────────────────────────────────────────────────────────

// StoreRepo lectura de ouvirtiba.store.
type StoreRepo struct {
	q Querier
}

// NewStoreRepository construye el adaptador.
func NewStoreRepository(q Querier) *StoreRepo {
	return &StoreRepo{q: q}
}

// GetByID nil, nil si no existe.
func (r *StoreRepo) GetByID(ctx context.Context, id int64) (*entity.Store, error) {
	const query = `
		SELECT id, name, COALESCE(trade_name, ''), code, COALESCE(state_registration, ''),
		       address, number::text, COALESCE(complement, ''), neighborhood, city,
		       COALESCE(city_code, ''), region, zipcode, COALESCE(phone, '')
		FROM store WHERE id = $1`
	var s entity.Store
	err := r.q.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.TradeName, &s.CNPJ, &s.IE,
		&s.Address, &s.Number, &s.Complement, &s.Neighborhood, &s.City,
		&s.CityCode, &s.UF, &s.ZipCode, &s.Phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get store: %w", err)
	}
	return &s, nil
}

// ── Cliente (destinatario) ───────────────────────────────────────────────────

// ClientRepo lectura de ouvirtiba.client.
type ClientRepo struct {
	q Querier
}

// NewClientRepository construye el adaptador.
func NewClientRepository(q Querier) *ClientRepo {
	return &ClientRepo{q: q}
}

// GetByID cliente de la tienda; nil, nil si no existe.
func (r *ClientRepo) GetByID(ctx context.Context, storeID, id int64) (*entity.Client, error) {
	const query = `
		SELECT id, store_id, code, name, email, zipcode, address, number::text,
		       COALESCE(complement, ''), neighborhood, city, COALESCE(city_code, ''), region
		FROM client WHERE id = $1 AND store_id = $2`
	var c entity.Client
	err := r.q.QueryRow(ctx, query, id, storeID).Scan(
		&c.ID, &c.StoreID, &c.Code, &c.Name, &c.Email, &c.ZipCode, &c.Address, &c.Number,
		&c.Complement, &c.Neighborhood, &c.City, &c.CityCode, &c.UF,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}

// ── Producto ─────────────────────────────────────────────────────────────────

// ProductRepo lectura de ouvirtiba.product con su clasificación fiscal.
type ProductRepo struct {
	q Querier
}

// NewProductRepository construye el adaptador.
func NewProductRepository(q Querier) *ProductRepo {
	return &ProductRepo{q: q}
}

// GetByID producto de la tienda; nil, nil si no existe.
func (r *ProductRepo) GetByID(ctx context.Context, storeID, id int64) (*entity.Product, error) {
	const query = `
		SELECT id, store_id, name, price, COALESCE(ncm, ''), COALESCE(cfop, ''), COALESCE(csosn, '')
		FROM product WHERE id = $1 AND store_id = $2`
	var p entity.Product
	err := r.q.QueryRow(ctx, query, id, storeID).Scan(&p.ID, &p.StoreID, &p.Name, &p.Price, &p.NCM, &p.CFOP, &p.CSOSN)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// ── Pedido ───────────────────────────────────────────────────────────────────

// OrderRepo lectura de ouvirtiba.customer_request(_item).
type OrderRepo struct {
	q Querier
}

// NewOrderRepository construye el adaptador.
func NewOrderRepository(q Querier) *OrderRepo {
	return &OrderRepo{q: q}
}

// GetPricedItems líneas con price > 0 del pedido de la tienda, en orden de inserción.
func (r *OrderRepo) GetPricedItems(ctx context.Context, storeID, orderID int64) ([]*entity.OrderItem, error) {
	const query = `
		SELECT i.customer_request_id, i.product_id, p.name, i.quantity::numeric, i.price, COALESCE(i.discount, 0),
		       COALESCE(i.serialnumber, ''), COALESCE(p.ncm, ''), COALESCE(p.cfop, ''), COALESCE(p.csosn, '')
		FROM customer_request_item i
		JOIN customer_request o ON o.id = i.customer_request_id
		JOIN product p ON p.id = i.product_id
		WHERE o.id = $1 AND o.store_id = $2 AND i.price > 0
		ORDER BY i.id`
	rows, err := r.q.Query(ctx, query, orderID, storeID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var list []*entity.OrderItem
	for rows.Next() {
		var it entity.OrderItem
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price, &it.Discount,
			&it.SerialNumber, &it.NCM, &it.CFOP, &it.CSOSN); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		list = append(list, &it)
	}
	return list, rows.Err()
}
