// Package paywall serves subscription plans from a store catalog and tracks
// which products each customer has purchased.
package paywall

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"bookgpt/backend/internal/agent/deps"
	errx "bookgpt/backend/internal/core/error"
	"bookgpt/backend/internal/metrics"
	"bookgpt/backend/internal/model"
	logx "bookgpt/backend/pkg/logger"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type PackageType string

const (
	PackageAnnual  PackageType = "annual"
	PackageWeekly  PackageType = "weekly"
	PackageMonthly PackageType = "monthly"
)

type PeriodUnit string

const (
	UnitDay   PeriodUnit = "day"
	UnitWeek  PeriodUnit = "week"
	UnitMonth PeriodUnit = "month"
	UnitYear  PeriodUnit = "year"
)

type Period struct {
	Value int        `yaml:"value"`
	Unit  PeriodUnit `yaml:"unit"`
}

// Package is one purchasable option of an offering.
type Package struct {
	ID          string      `yaml:"id"`
	ProductID   string      `yaml:"product_id"`
	Type        PackageType `yaml:"type"`
	Price       string      `yaml:"price"`
	Period      *Period     `yaml:"period"`
	IntroPeriod *Period     `yaml:"intro_period"`
}

type Offering struct {
	ID       string    `yaml:"id"`
	Packages []Package `yaml:"packages"`
}

type Catalog struct {
	Offerings []Offering `yaml:"offerings"`
}

// Config selects the offering and the products that unlock the app.
type Config struct {
	OfferingID      string `envconfig:"PAYWALL_OFFERING_ID" default:"standard"`
	WeeklyProductID string `envconfig:"PAYWALL_WEEKLY_PRODUCT_ID" default:"book_gpt_pro_weekly"`
	AnnualProductID string `envconfig:"PAYWALL_ANNUAL_PRODUCT_ID" default:"book_gpt_pro_annual"`
	CatalogPath     string `envconfig:"PAYWALL_CATALOG_PATH"`
}

// LoadCatalog reads the catalog at path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read paywall catalog: %w", err)
		}
		data = b
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse paywall catalog: %w", err)
	}
	return &catalog, nil
}

// Service resolves plans and records entitlements per customer.
type Service struct {
	config  Config
	catalog *Catalog

	mu          sync.Mutex
	entitlement map[string]map[string]struct{} // customer -> active product ids
}

func NewService(config Config, catalog *Catalog) *Service {
	return &Service{
		config:      config,
		catalog:     catalog,
		entitlement: make(map[string]map[string]struct{}),
	}
}

func (s *Service) offering() (Offering, bool) {
	for _, o := range s.catalog.Offerings {
		if o.ID == s.config.OfferingID {
			return o, true
		}
	}
	return Offering{}, false
}

// Plans returns the configured offering ordered annual, weekly, monthly, other.
func (s *Service) Plans() []model.PaywallPlan {
	offering, ok := s.offering()
	if !ok {
		logx.Warn().Str("offering", s.config.OfferingID).Msg("paywall offering not found")
		return []model.PaywallPlan{}
	}

	packages := make([]Package, len(offering.Packages))
	copy(packages, offering.Packages)
	sort.SliceStable(packages, func(i, j int) bool {
		return rank(packages[i].Type) < rank(packages[j].Type)
	})

	plans := make([]model.PaywallPlan, 0, len(packages))
	for _, p := range packages {
		plans = append(plans, model.PaywallPlan{
			ID:            p.ID,
			ProductID:     p.ProductID,
			Title:         title(p.Type),
			Price:         p.Price,
			BillingDetail: billingDetail(p),
			TrialDetail:   trialDetail(p),
		})
	}
	return plans
}

func (s *Service) findPackage(planID string) (Package, bool) {
	offering, ok := s.offering()
	if !ok {
		return Package{}, false
	}
	for _, p := range offering.Packages {
		if p.ID == planID {
			return p, true
		}
	}
	return Package{}, false
}

// Purchase grants the product behind planID to customer and reports whether
// the customer now holds an unlocking subscription. Unknown plans grant nothing.
func (s *Service) Purchase(customer, planID string) bool {
	p, ok := s.findPackage(planID)
	if !ok {
		logx.Warn().Str("plan", planID).Msg("purchase of unknown plan")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	owned, ok := s.entitlement[customer]
	if !ok {
		owned = make(map[string]struct{})
		s.entitlement[customer] = owned
	}
	owned[p.ProductID] = struct{}{}
	return s.hasActiveLocked(customer)
}

// Active reports whether customer holds the annual or weekly product.
func (s *Service) Active(customer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasActiveLocked(customer)
}

func (s *Service) hasActiveLocked(customer string) bool {
	owned := s.entitlement[customer]
	_, annual := owned[s.config.AnnualProductID]
	_, weekly := owned[s.config.WeeklyProductID]
	return annual || weekly
}

// For returns the paywall capability scoped to one customer.
func (s *Service) For(customer string) deps.PaywallService {
	return &account{service: s, customer: customer}
}

type account struct {
	service  *Service
	customer string
}

func (a *account) FetchPlans(ctx context.Context) ([]model.PaywallPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.service.Plans(), nil
}

func (a *account) Purchase(ctx context.Context, planID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		metrics.PaywallOutcomes.WithLabelValues("purchase", "error").Inc()
		return false, fmt.Errorf("%w: %v", errx.ErrPurchaseFailed, err)
	}
	active := a.service.Purchase(a.customer, planID)
	metrics.PaywallOutcomes.WithLabelValues("purchase", outcome(active)).Inc()
	return active, nil
}

func (a *account) RestorePurchases(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		metrics.PaywallOutcomes.WithLabelValues("restore", "error").Inc()
		return false, fmt.Errorf("%w: %v", errx.ErrRestoreFailed, err)
	}
	active := a.service.Active(a.customer)
	metrics.PaywallOutcomes.WithLabelValues("restore", outcome(active)).Inc()
	return active, nil
}

func outcome(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func rank(t PackageType) int {
	switch t {
	case PackageAnnual:
		return 0
	case PackageWeekly:
		return 1
	case PackageMonthly:
		return 2
	default:
		return 3
	}
}

func title(t PackageType) string {
	switch t {
	case PackageAnnual:
		return "Annual"
	case PackageWeekly:
		return "Weekly"
	case PackageMonthly:
		return "Monthly"
	default:
		return "Plan"
	}
}

func billingDetail(p Package) string {
	if p.Period == nil {
		return "Billed " + p.Price
	}
	switch p.Period.Unit {
	case UnitDay, UnitWeek, UnitMonth, UnitYear:
		return fmt.Sprintf("Billed every %d %s(s)", p.Period.Value, p.Period.Unit)
	default:
		return "Billed periodically"
	}
}

func trialDetail(p Package) *string {
	if p.IntroPeriod == nil {
		return nil
	}
	var s string
	switch p.IntroPeriod.Unit {
	case UnitDay, UnitWeek, UnitMonth, UnitYear:
		s = fmt.Sprintf("%d-%s trial", p.IntroPeriod.Value, p.IntroPeriod.Unit)
	default:
		s = "Intro offer available"
	}
	return &s
}
