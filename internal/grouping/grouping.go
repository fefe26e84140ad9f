// Package grouping merges raw order line items into the display/print
// groups that tickets are rendered from. Grouping is pure and derived: it
// is recomputed from freshly read rows on every request and never stored.
package grouping

import (
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var ErrMissingProduct = errors.New("line item has no product")

// FallbackChannel receives items whose category has no routing channel.
const FallbackChannel = "GENERAL"

type Addon struct {
	ID         uuid.UUID
	Name       string
	ExtraPrice decimal.Decimal
}

// LineItem is one raw order row as read from the store.
type LineItem struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Channel     string
	Quantity    int32
	UnitPrice   decimal.Decimal
	Note        string
	Addons      []Addon
}

// Signature is the structural key two line items must share to be merged
// into one group: same product, same addon set, same normalized note.
type Signature struct {
	ProductID uuid.UUID
	AddonKey  string
	Note      string
}

// Group is one display/print line: the merged quantity of every
// constituent item plus the ids needed to target a representative item
// for quantity and delete operations.
type Group struct {
	Signature   Signature
	ProductName string
	Note        string
	Quantity    int32
	UnitPrice   decimal.Decimal
	Addons      []Addon
	ItemIDs     []uuid.UUID
}

// SignatureOf computes the structural key for one line item. Duplicate and
// zero addon ids are dropped so logically identical items cannot split
// into distinct groups.
func SignatureOf(it LineItem) (Signature, error) {
	if it.ProductID == uuid.Nil {
		return Signature{}, ErrMissingProduct
	}
	return Signature{
		ProductID: it.ProductID,
		AddonKey:  addonKey(it.Addons),
		Note:      NormalizeNote(it.Note),
	}, nil
}

// NormalizeNote maps an absent note and a whitespace-only note to the same
// signature component.
func NormalizeNote(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func addonKey(addons []Addon) string {
	seen := make(map[uuid.UUID]struct{}, len(addons))
	ids := make([]string, 0, len(addons))
	for _, a := range addons {
		if a.ID == uuid.Nil {
			continue
		}
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		ids = append(ids, a.ID.String())
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func dedupeAddons(addons []Addon) []Addon {
	seen := make(map[uuid.UUID]struct{}, len(addons))
	var out []Addon
	for _, a := range addons {
		if a.ID == uuid.Nil {
			continue
		}
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Aggregate merges items sharing a signature and returns the groups sorted
// by product name (Spanish collation), ties broken by note. The ordering
// carries no business meaning; it only keeps printed tickets byte-stable
// regardless of the order items were added in.
func Aggregate(items []LineItem) ([]Group, error) {
	byKey := make(map[Signature]*Group, len(items))
	var groups []*Group

	for _, it := range items {
		sig, err := SignatureOf(it)
		if err != nil {
			return nil, err
		}
		g, ok := byKey[sig]
		if !ok {
			g = &Group{
				Signature:   sig,
				ProductName: it.ProductName,
				Note:        strings.TrimSpace(it.Note),
				UnitPrice:   it.UnitPrice,
				Addons:      dedupeAddons(it.Addons),
			}
			byKey[sig] = g
			groups = append(groups, g)
		}
		g.Quantity += it.Quantity
		g.ItemIDs = append(g.ItemIDs, it.ID)
	}

	// Collators reuse an internal buffer, so build one per call rather
	// than sharing a package-level instance across requests.
	c := collate.New(language.Spanish)
	sort.SliceStable(groups, func(i, j int) bool {
		if n := c.CompareString(groups[i].ProductName, groups[j].ProductName); n != 0 {
			return n < 0
		}
		return c.CompareString(groups[i].Note, groups[j].Note) < 0
	})

	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = *g
	}
	return out, nil
}

// ByChannel partitions items by destination channel and groups each
// partition independently, so identical products bound for different
// stations never merge. Items with no channel fall back to FallbackChannel.
func ByChannel(items []LineItem) (map[string][]Group, error) {
	partitions := make(map[string][]LineItem)
	for _, it := range items {
		ch := strings.ToUpper(strings.TrimSpace(it.Channel))
		if ch == "" {
			ch = FallbackChannel
		}
		partitions[ch] = append(partitions[ch], it)
	}

	out := make(map[string][]Group, len(partitions))
	for ch, part := range partitions {
		groups, err := Aggregate(part)
		if err != nil {
			return nil, err
		}
		if len(groups) == 0 {
			continue
		}
		out[ch] = groups
	}
	return out, nil
}

// Channels returns the map's keys sorted, for deterministic emission order.
func Channels(m map[string][]Group) []string {
	chs := make([]string, 0, len(m))
	for ch := range m {
		chs = append(chs, ch)
	}
	sort.Strings(chs)
	return chs
}
