package repository

import (
	"context"

	"github.com/janssengh/ouvirtiba/internal/domain/entity"
)

// StoreRepository lectura del emitente.
type StoreRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Store, error)
}

// ClientRepository lectura del destinatario.
type ClientRepository interface {
	GetByID(ctx context.Context, storeID, id int64) (*entity.Client, error)
}

// ProductRepository lectura de productos y su clasificación fiscal.
type ProductRepository interface {
	GetByID(ctx context.Context, storeID, id int64) (*entity.Product, error)
}

// OrderRepository lectura de pedidos.
type OrderRepository interface {
	// GetPricedItems devuelve las líneas con precio > 0 del pedido, con la clasificación del producto.
	GetPricedItems(ctx context.Context, storeID, orderID int64) ([]*entity.OrderItem, error)
}
