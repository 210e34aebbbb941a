package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/deepwater-mud/economy/internal/inventory"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/store"
)

//go:embed default.yaml
var defaultCatalog []byte

type MaterialDef struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	BasePrice string `yaml:"base_price"`
	Tradeable bool   `yaml:"tradeable"`

	price decimal.Decimal
}

func (m MaterialDef) Price() decimal.Decimal { return m.price }

type NPCDef struct {
	ID            string           `yaml:"id"`
	Name          string           `yaml:"name"`
	StockModifier string           `yaml:"stock_modifier"`
	Markup        string           `yaml:"markup"`
	SeedBalance   string           `yaml:"seed_balance"`
	Stock         map[string]int64 `yaml:"stock"`

	modifier decimal.Decimal
	markup   decimal.Decimal
	seed     decimal.Decimal
}

// WalletID is the NPC's wallet and inventory owner id.
func (n NPCDef) WalletID() string { return "npc:" + n.ID }

func (n NPCDef) Modifier() decimal.Decimal { return n.modifier }

func (n NPCDef) MarkupRate() decimal.Decimal { return n.markup }

type JobDef struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Employer string `yaml:"employer"`
	Pay      string `yaml:"pay"`

	pay decimal.Decimal
}

func (j JobDef) PayAmount() decimal.Decimal { return j.pay }

type BankDef struct {
	SeedReserve string `yaml:"seed_reserve"`

	reserve decimal.Decimal
}

// Catalog is the static game content the economy prices against.
type Catalog struct {
	Materials []MaterialDef `yaml:"materials"`
	NPCs      []NPCDef      `yaml:"npcs"`
	Jobs      []JobDef      `yaml:"jobs"`
	Bank      BankDef       `yaml:"bank"`

	npcs map[string]NPCDef
	jobs map[string]JobDef
}

// Load reads a catalog file. An empty path loads the built-in catalog.
func Load(path string) (*Catalog, error) {
	raw := defaultCatalog
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}
	return Parse(raw)
}

// Parse decodes and validates catalog YAML.
func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if err := c.prepare(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return &c, nil
}

func parseAmount(field, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

func (c *Catalog) prepare() error {
	materials := make(map[string]bool, len(c.Materials))
	for i := range c.Materials {
		m := &c.Materials[i]
		if m.ID == "" {
			return errors.New("material without id")
		}
		if materials[m.ID] {
			return fmt.Errorf("duplicate material %s", m.ID)
		}
		materials[m.ID] = true
		var err error
		if m.price, err = parseAmount(m.ID+".base_price", m.BasePrice); err != nil {
			return err
		}
	}

	c.npcs = make(map[string]NPCDef, len(c.NPCs))
	for i := range c.NPCs {
		n := &c.NPCs[i]
		if n.ID == "" {
			return errors.New("npc without id")
		}
		var err error
		if n.modifier, err = parseAmount(n.ID+".stock_modifier", n.StockModifier); err != nil {
			return err
		}
		if n.modifier.IsZero() {
			n.modifier = decimal.NewFromInt(1)
		}
		if n.markup, err = parseAmount(n.ID+".markup", n.Markup); err != nil {
			return err
		}
		if n.seed, err = parseAmount(n.ID+".seed_balance", n.SeedBalance); err != nil {
			return err
		}
		for mat, q := range n.Stock {
			if !materials[mat] {
				return fmt.Errorf("npc %s stocks unknown material %s", n.ID, mat)
			}
			if q < 0 {
				return fmt.Errorf("npc %s stock of %s is negative", n.ID, mat)
			}
		}
		c.npcs[n.ID] = *n
	}

	c.jobs = make(map[string]JobDef, len(c.Jobs))
	for i := range c.Jobs {
		j := &c.Jobs[i]
		var err error
		if j.pay, err = parseAmount(j.ID+".pay", j.Pay); err != nil {
			return err
		}
		if !j.pay.IsPositive() {
			return fmt.Errorf("job %s must pay something", j.ID)
		}
		c.jobs[j.ID] = *j
	}

	var err error
	c.Bank.reserve, err = parseAmount("bank.seed_reserve", c.Bank.SeedReserve)
	return err
}

// NPC looks up a merchant by id, accepting either "fishmonger" or "npc:fishmonger".
func (c *Catalog) NPC(id string) (NPCDef, bool) {
	if len(id) > 4 && id[:4] == "npc:" {
		id = id[4:]
	}
	n, ok := c.npcs[id]
	return n, ok
}

func (c *Catalog) Job(id string) (JobDef, bool) {
	j, ok := c.jobs[id]
	return j, ok
}

// NPCWallets lists every merchant wallet id in catalog order.
func (c *Catalog) NPCWallets() []string {
	ids := make([]string, 0, len(c.NPCs))
	for _, n := range c.NPCs {
		ids = append(ids, n.WalletID())
	}
	return ids
}

// Sync writes the catalog into the store. Materials are upserted by id.
// Genesis balances and stock are minted only for wallets with no history, so
// Sync can run on every start.
func Sync(ctx context.Context, s store.Store, c *Catalog, led *ledger.Ledger, inv *inventory.Inventory, logger *slog.Logger) error {
	return s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, def := range c.Materials {
			m := store.Material{ID: def.ID, Name: def.Name, BasePrice: def.price, Tradeable: def.Tradeable}
			_, err := tx.GetMaterial(ctx, def.ID)
			switch {
			case errors.Is(err, store.ErrNotFound):
				err = tx.InsertMaterial(ctx, m)
			case err == nil:
				err = tx.UpdateMaterial(ctx, m)
			}
			if err != nil {
				return fmt.Errorf("sync material %s: %w", def.ID, err)
			}
		}

		if err := genesis(ctx, tx, led, ledger.BankWallet, c.Bank.reserve, "genesis reserve"); err != nil {
			return err
		}
		if _, err := led.EnsureWallet(ctx, tx, ledger.TreasuryWallet); err != nil {
			return err
		}

		for _, n := range c.NPCs {
			fresh, err := isFresh(ctx, tx, n.WalletID())
			if err != nil {
				return err
			}
			if err := genesis(ctx, tx, led, n.WalletID(), n.seed, "genesis balance for "+n.Name); err != nil {
				return err
			}
			if !fresh {
				continue
			}
			for mat, q := range n.Stock {
				if q == 0 {
					continue
				}
				if _, err := inv.Adjust(ctx, tx, n.WalletID(), mat, q); err != nil {
					return fmt.Errorf("stock %s: %w", n.ID, err)
				}
			}
			logger.InfoContext(ctx, "npc merchant provisioned", "npc_id", n.ID, "seed", n.seed.String())
		}
		return nil
	})
}

func isFresh(ctx context.Context, tx store.Tx, walletID string) (bool, error) {
	history, err := tx.ListLedgerTransactions(ctx, walletID, 1)
	if err != nil {
		return false, err
	}
	return len(history) == 0, nil
}

func genesis(ctx context.Context, tx store.Tx, led *ledger.Ledger, walletID string, amount decimal.Decimal, description string) error {
	if _, err := led.EnsureWallet(ctx, tx, walletID); err != nil {
		return err
	}
	fresh, err := isFresh(ctx, tx, walletID)
	if err != nil || !fresh || !amount.IsPositive() {
		return err
	}
	_, err = led.Mint(ctx, tx, walletID, amount, description)
	return err
}
