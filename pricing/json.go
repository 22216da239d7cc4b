package pricing

import (
	"encoding/json"
	"fmt"

	"github.com/xraph/tally/types"
)

// modelEnvelope is the wire form of a pricing model: a type discriminator
// plus the union of every model's fields.
type modelEnvelope struct {
	Type       string       `json:"type"`
	UnitAmount *types.Money `json:"unit_amount,omitempty"`
	Amount     *types.Money `json:"amount,omitempty"`
	Tiers      []Tier       `json:"tiers,omitempty"`
	Size       float64      `json:"size,omitempty"`
	PerPackage *types.Money `json:"per_package,omitempty"`
}

func encodeModel(m Model) *modelEnvelope {
	switch v := m.(type) {
	case PerUnit:
		return &modelEnvelope{Type: v.ModelName(), UnitAmount: &v.UnitAmount}
	case FlatFee:
		return &modelEnvelope{Type: v.ModelName(), Amount: &v.Amount}
	case Graduated:
		return &modelEnvelope{Type: v.ModelName(), Tiers: v.Tiers}
	case Volume:
		return &modelEnvelope{Type: v.ModelName(), Tiers: v.Tiers}
	case Package:
		return &modelEnvelope{Type: v.ModelName(), Size: v.Size, PerPackage: &v.PerPackage}
	default:
		return nil
	}
}

func decodeModel(env *modelEnvelope) (Model, error) {
	if env == nil {
		return nil, nil
	}
	switch env.Type {
	case "per_unit":
		m := PerUnit{}
		if env.UnitAmount != nil {
			m.UnitAmount = *env.UnitAmount
		}
		return m, nil
	case "flat_fee":
		m := FlatFee{}
		if env.Amount != nil {
			m.Amount = *env.Amount
		}
		return m, nil
	case "tiered_graduated":
		return Graduated{Tiers: env.Tiers}, nil
	case "tiered_volume":
		return Volume{Tiers: env.Tiers}, nil
	case "package":
		m := Package{Size: env.Size}
		if env.PerPackage != nil {
			m.PerPackage = *env.PerPackage
		}
		return m, nil
	default:
		return nil, fmt.Errorf("pricing: unknown model type %q", env.Type)
	}
}

type priceAlias Price

type priceJSON struct {
	priceAlias
	Model *modelEnvelope `json:"model,omitempty"`
}

// MarshalJSON encodes the price with its model wrapped in a
// type-discriminated envelope so it can round-trip through storage.
func (p Price) MarshalJSON() ([]byte, error) {
	out := priceJSON{priceAlias: priceAlias(p)}
	out.priceAlias.Model = nil
	out.Model = encodeModel(p.Model)
	return json.Marshal(out)
}

// UnmarshalJSON decodes a price produced by MarshalJSON.
func (p *Price) UnmarshalJSON(data []byte) error {
	var in priceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	model, err := decodeModel(in.Model)
	if err != nil {
		return err
	}
	*p = Price(in.priceAlias)
	p.Model = model
	return nil
}
