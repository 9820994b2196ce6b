package services

import (
	"fmt"

	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
)

// PricingRules are the configurable parts of a quote.
type PricingRules struct {
	DepositPercent int64
	TaxRateBps     int64
	DeliveryFee    int64
}

// Quote is a priced configuration and the required groups still unselected.
type Quote struct {
	Selections []models.Selection `json:"selections"`
	Pricing    models.Pricing     `json:"pricing"`
	Missing    []string           `json:"missing_groups"`
}

// Price validates selections against the model's option groups and prices
// them. Duplicate selections collapse. Selections are returned in option
// group order.
func Price(model *models.HomeModel, selections []models.Selection, rules PricingRules) (*Quote, *apperrors.Error) {
	groups := make(map[string]*models.OptionGroup, len(model.OptionGroups))
	for i := range model.OptionGroups {
		groups[model.OptionGroups[i].Key] = &model.OptionGroups[i]
	}

	chosen := make(map[string]map[string]bool)
	for _, sel := range selections {
		g, ok := groups[sel.Group]
		if !ok {
			return nil, apperrors.BadRequest(fmt.Sprintf("Unknown option group %q", sel.Group))
		}
		if findOption(g, sel.Option) == nil {
			return nil, apperrors.BadRequest(fmt.Sprintf("Unknown option %q in group %q", sel.Option, sel.Group))
		}
		if chosen[sel.Group] == nil {
			chosen[sel.Group] = make(map[string]bool)
		}
		chosen[sel.Group][sel.Option] = true
		if !g.Multi && len(chosen[sel.Group]) > 1 {
			return nil, apperrors.BadRequest(fmt.Sprintf("Option group %q allows a single choice", sel.Group))
		}
	}

	q := &Quote{Selections: []models.Selection{}, Missing: []string{}}
	p := models.Pricing{
		Base:  model.BasePrice,
		Lines: []models.PriceLine{{Label: model.Name, Amount: model.BasePrice}},
	}
	for _, g := range model.OptionGroups {
		picked := chosen[g.Key]
		if len(picked) == 0 {
			if g.Required {
				q.Missing = append(q.Missing, g.Key)
			}
			continue
		}
		for _, opt := range g.Options {
			if !picked[opt.Key] {
				continue
			}
			q.Selections = append(q.Selections, models.Selection{Group: g.Key, Option: opt.Key})
			p.Options += opt.Price
			p.Lines = append(p.Lines, models.PriceLine{
				Group:  g.Key,
				Option: opt.Key,
				Label:  g.Name + ": " + opt.Name,
				Amount: opt.Price,
			})
		}
	}

	p.Subtotal = p.Base + p.Options
	p.Delivery = rules.DeliveryFee
	p.Tax = roundDiv(p.Subtotal*rules.TaxRateBps, 10000)
	p.Total = p.Subtotal + p.Delivery + p.Tax
	if p.Delivery > 0 {
		p.Lines = append(p.Lines, models.PriceLine{Label: "Delivery", Amount: p.Delivery})
	}
	if p.Tax > 0 {
		p.Lines = append(p.Lines, models.PriceLine{Label: "Sales tax", Amount: p.Tax})
	}
	q.Pricing = p
	return q, nil
}

func findOption(g *models.OptionGroup, key string) *models.ModelOption {
	for i := range g.Options {
		if g.Options[i].Key == key {
			return &g.Options[i]
		}
	}
	return nil
}

// Milestones splits total into the payment milestones of plan.
func Milestones(total int64, plan models.PaymentPlan, depositPercent int64) []models.Milestone {
	if plan == models.PaymentPlanFull {
		return []models.Milestone{{Name: models.MilestoneFull, Amount: total, Status: models.MilestonePending}}
	}
	deposit := roundDiv(total*depositPercent, 100)
	return []models.Milestone{
		{Name: models.MilestoneDeposit, Amount: deposit, Status: models.MilestonePending},
		{Name: models.MilestoneFinal, Amount: total - deposit, Status: models.MilestonePending},
	}
}

// roundDiv divides non-negative n by d, rounding half up.
func roundDiv(n, d int64) int64 {
	return (n + d/2) / d
}
