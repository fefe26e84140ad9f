package database

import (
	"context"
)

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, `
		SELECT id, username, full_name, role, password_hash, active
		  FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.PasswordHash, &u.Active)
	return u, err
}

func (q *Queries) ListProducts(ctx context.Context) ([]ProductRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT p.id, p.name, p.price, c.channel
		  FROM products p
		  LEFT JOIN categories c ON c.id = p.category_id
		 ORDER BY p.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []ProductRow
	for rows.Next() {
		var p ProductRow
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Channel); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (q *Queries) ListAddons(ctx context.Context) ([]Addon, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name, extra_price FROM addons ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addons []Addon
	for rows.Next() {
		var a Addon
		if err := rows.Scan(&a.ID, &a.Name, &a.ExtraPrice); err != nil {
			return nil, err
		}
		addons = append(addons, a)
	}
	return addons, rows.Err()
}

// GetPrinterForChannel resolves a destination channel to the active
// printer queue configured for it. pgx.ErrNoRows means the channel has no
// route, which emission reports as a per-channel failure.
func (q *Queries) GetPrinterForChannel(ctx context.Context, channel string) (string, error) {
	var name string
	err := q.db.QueryRow(ctx, `
		SELECT p.name
		  FROM print_routes r
		  JOIN printers p ON p.name = r.printer_name
		 WHERE UPPER(r.channel) = UPPER($1) AND p.active
		 LIMIT 1`, channel).Scan(&name)
	return name, err
}
