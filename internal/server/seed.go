package server

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carrierdesk/carrierdesk/internal/pricing"
)

type lane struct {
	origin, destination string
	miles               float64
}

var seedLanes = []lane{
	{"Dallas, TX", "Atlanta, GA", 780},
	{"Chicago, IL", "New York, NY", 790},
	{"Los Angeles, CA", "Phoenix, AZ", 375},
	{"Houston, TX", "Miami, FL", 1185},
	{"Seattle, WA", "Portland, OR", 175},
	{"Denver, CO", "Las Vegas, NV", 750},
	{"Atlanta, GA", "Chicago, IL", 715},
	{"Boston, MA", "New York, NY", 215},
	{"Austin, TX", "Denver, CO", 865},
	{"San Francisco, CA", "Los Angeles, CA", 380},
	{"Phoenix, AZ", "Dallas, TX", 1060},
	{"Miami, FL", "Atlanta, GA", 665},
}

var seedCommodities = map[string][]string{
	"general freight":        {"dry_van"},
	"food products":          {"reefer"},
	"electronics":            {"dry_van"},
	"machinery":              {"flatbed", "step_deck", "lowboy"},
	"building materials":     {"flatbed", "step_deck"},
	"pharmaceuticals":        {"reefer", "dry_van"},
	"construction equipment": {"flatbed", "lowboy", "double_drop"},
	"retail goods":           {"dry_van", "other"},
}

var seedCommodityOrder = []string{
	"general freight", "food products", "electronics", "machinery",
	"building materials", "pharmaceuticals", "construction equipment", "retail goods",
}

// Seed 空库时写入一批固定的演示数据（随机种子固定，结果可复现）
func (s *Server) Seed(ctx context.Context) (loads int, calls int, err error) {
	nLoads, err := s.countLoads(ctx)
	if err != nil {
		return 0, 0, err
	}
	nCalls, err := s.countCalls(ctx)
	if err != nil {
		return 0, 0, err
	}

	rng := rand.New(rand.NewSource(20251217))
	base := time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)

	var seeded []Load
	if nLoads == 0 {
		for i := 0; i < 24; i++ {
			l := seedLoad(rng, i, base)
			if err := s.insertLoad(ctx, l); err != nil {
				return loads, calls, fmt.Errorf("seed load %s: %w", l.LoadID, err)
			}
			seeded = append(seeded, l)
			loads++
		}
	} else {
		if seeded, err = s.listLoads(ctx); err != nil {
			return 0, 0, err
		}
	}

	if nCalls == 0 && len(seeded) > 0 {
		for i := 0; i < 60; i++ {
			c := seedCall(rng, i, base, seeded, s.cfg.Pricing)
			if err := s.upsertCall(ctx, c); err != nil {
				return loads, calls, fmt.Errorf("seed call %s: %w", c.CallID, err)
			}
			calls++
		}
	}
	serverLog.Infof("seeded %d loads, %d calls", loads, calls)
	return loads, calls, nil
}

func seedLoad(rng *rand.Rand, i int, base time.Time) Load {
	ln := seedLanes[i%len(seedLanes)]
	commodity := seedCommodityOrder[rng.Intn(len(seedCommodityOrder))]
	equipment := seedCommodities[commodity][rng.Intn(len(seedCommodities[commodity]))]

	ratePerMile := 2.0 + rng.Float64()*1.5
	if equipment == "reefer" {
		ratePerMile += 0.35
	}
	rate := math.Round(ln.miles*ratePerMile/25) * 25
	pickup := base.Add(time.Duration(i*7) * time.Hour)
	transit := time.Duration(math.Ceil(ln.miles/500)*24) * time.Hour

	pieces := 1 + rng.Intn(30)
	l := Load{
		LoadID:           fmt.Sprintf("LD-%05d", 10001+i),
		Origin:           ln.origin,
		Destination:      ln.destination,
		PickupDatetime:   pickup,
		DeliveryDatetime: pickup.Add(transit),
		EquipmentType:    equipment,
		LoadboardRate:    rate,
		Weight:           float64(5000 + rng.Intn(39000)),
		CommodityType:    commodity,
		NumOfPieces:      &pieces,
		Miles:            ln.miles,
		CreatedAt:        base.Add(time.Duration(i) * time.Minute),
	}
	if i%3 == 0 {
		notes := "Driver assist required at pickup"
		l.Notes = &notes
	}
	if equipment == "flatbed" || equipment == "step_deck" || equipment == "lowboy" || equipment == "double_drop" {
		dims := "48ft x 8.5ft x 10ft"
		l.Dimensions = &dims
	}
	return l
}

// seedCall 用真实的议价规则生成通话结果，看板数据和定价逻辑保持一致
func seedCall(rng *rand.Rand, i int, base time.Time, loads []Load, cfg pricing.Config) Call {
	started := base.Add(time.Duration(i*6)*time.Hour + time.Duration(rng.Intn(3600))*time.Second)
	sentiments := []string{"positive", "neutral", "negative"}
	c := Call{
		CallID:    fmt.Sprintf("call_demo_%03d", i+1),
		StartedAt: started,
		Sentiment: sentiments[rng.Intn(len(sentiments))],
	}

	mc := fmt.Sprintf("%06d", 100000+rng.Intn(900000))
	c.MCNumber = &mc

	switch r := rng.Intn(10); {
	case r == 0:
		c.Outcome = OutcomeNotVerified
		c.Sentiment = "neutral"
		return c
	case r == 1:
		c.Outcome = OutcomeNoLoadFound
		return c
	case r == 2:
		c.Outcome = OutcomeCallDropped
		return c
	}

	l := loads[rng.Intn(len(loads))]
	c.SelectedLoadID = &l.LoadID
	listed := decimal.NewFromFloat(l.LoadboardRate)

	// 承运商报价高于挂牌价 0%~25%，每轮让步
	ask := listed.Mul(decimal.NewFromFloat(1 + rng.Float64()*0.25)).Round(0)
	initial := ask.InexactFloat64()
	c.InitialRate = &initial

	for round := 1; round <= cfg.MaxRounds; round++ {
		res := pricing.Evaluate(pricing.Request{ListedRate: listed, CounterRate: ask, Round: round}, cfg)
		rounds := round
		c.NegotiationRounds = &rounds
		switch res.Decision {
		case pricing.DecisionAccept:
			final := res.ApprovedRate.Decimal.InexactFloat64()
			c.FinalRate = &final
			c.Outcome = OutcomeBookedTransfer
		case pricing.DecisionReject:
			c.Outcome = OutcomeNegotiationFailed
		case pricing.DecisionCounter:
			if rng.Intn(4) == 0 {
				c.Outcome = OutcomeNotInterested
				break
			}
			// 承运商往我们的报价靠拢
			ask = ask.Add(res.CounterRate.Decimal).Div(decimal.NewFromInt(2)).Round(0)
			continue
		}
		break
	}
	if c.Outcome == "" {
		c.Outcome = OutcomeNegotiationFailed
	}
	transcript := fmt.Sprintf("Carrier MC %s called about %s (%s to %s).\nAsked $%s.\nOutcome: %s",
		mc, l.LoadID, l.Origin, l.Destination, decimal.NewFromFloat(initial).StringFixed(0), c.Outcome)
	c.Transcript = &transcript
	return c
}
