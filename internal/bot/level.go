package bot

import "github.com/xtrntr/tradinggame/internal/models"

// Params are the behavioural knobs of a difficulty level. Noise and margin
// fractions are relative to the bot's fair-value estimate; QuoteNoise bounds
// are absolute price units.
type Params struct {
	InitialNoise       float64 // ± fraction applied once when the bot is created
	DriftNoise         float64 // ± fraction applied after each drift step
	QuoteNoiseMin      float64
	QuoteNoiseMax      float64
	Margin             float64 // quote half-width and trade edge
	RequoteProbability float64
	Activity           float64 // scales the market-driven trade frequency
}

var levels = map[models.Level]Params{
	models.LevelEasy: {
		InitialNoise: 0.20, DriftNoise: 0.05,
		QuoteNoiseMin: 5, QuoteNoiseMax: 10,
		Margin: 0.10, RequoteProbability: 0.10, Activity: 0.75,
	},
	models.LevelMedium: {
		InitialNoise: 0.10, DriftNoise: 0.02,
		QuoteNoiseMin: 2, QuoteNoiseMax: 5,
		Margin: 0.05, RequoteProbability: 0.25, Activity: 1.0,
	},
	models.LevelHard: {
		InitialNoise: 0.05, DriftNoise: 0.01,
		QuoteNoiseMin: 1, QuoteNoiseMax: 2,
		Margin: 0.02, RequoteProbability: 0.50, Activity: 1.1,
	},
	models.LevelExpert: {
		InitialNoise: 0.02, DriftNoise: 0.005,
		QuoteNoiseMin: 0.5, QuoteNoiseMax: 1,
		Margin: 0.01, RequoteProbability: 0.70, Activity: 1.2,
	},
}

// ParamsFor returns the parameters of a level.
func ParamsFor(l models.Level) (Params, error) {
	p, ok := levels[l]
	if !ok {
		return Params{}, models.ErrUnknownLevel
	}
	return p, nil
}
