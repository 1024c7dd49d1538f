package config

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/parking/pkg/parking"
	"github.com/spf13/viper"
)

// Viper keys for the tariff. Each key is also bound to the PARKING_* variable
// named in pricingEnvBindings.
const (
	KeyGracePeriodMinutes = "pricing.grace_period_minutes"
	KeyRateCar            = "pricing.rate_car"
	KeyRateBike           = "pricing.rate_bike"
	KeyRateTruck          = "pricing.rate_truck"
	KeySurgeEnabled       = "pricing.surge_enabled"
	KeySurgeMultiplier    = "pricing.surge_multiplier"
	KeySurgeStartHour     = "pricing.surge_start_hour"
	KeySurgeEndHour       = "pricing.surge_end_hour"
	KeyNightEnabled       = "pricing.night_enabled"
	KeyNightMultiplier    = "pricing.night_multiplier"
	KeyNightStartHour     = "pricing.night_start_hour"
	KeyNightEndHour       = "pricing.night_end_hour"
	KeyTimezone           = "pricing.timezone"

	timezoneLocal = "Local"
	centsPerUnit  = 100
)

var pricingEnvBindings = map[string]string{
	KeyGracePeriodMinutes: "PARKING_GRACE_PERIOD_MINUTES",
	KeyRateCar:            "PARKING_RATE_CAR",
	KeyRateBike:           "PARKING_RATE_BIKE",
	KeyRateTruck:          "PARKING_RATE_TRUCK",
	KeySurgeEnabled:       "PARKING_SURGE_ENABLED",
	KeySurgeMultiplier:    "PARKING_SURGE_MULTIPLIER",
	KeySurgeStartHour:     "PARKING_SURGE_START_HOUR",
	KeySurgeEndHour:       "PARKING_SURGE_END_HOUR",
	KeyNightEnabled:       "PARKING_NIGHT_ENABLED",
	KeyNightMultiplier:    "PARKING_NIGHT_MULTIPLIER",
	KeyNightStartHour:     "PARKING_NIGHT_START_HOUR",
	KeyNightEndHour:       "PARKING_NIGHT_END_HOUR",
	KeyTimezone:           "PARKING_TIMEZONE",
}

// PricingProvider reads the tariff from viper on every call, so changes to the
// underlying configuration apply to the next fare without a restart.
type PricingProvider struct {
	settings *viper.Viper
}

// NewPricingProvider registers defaults and environment bindings on v.
func NewPricingProvider(v *viper.Viper) (*PricingProvider, error) {
	if v == nil {
		return nil, fmt.Errorf("pricing provider: viper instance is required")
	}
	RegisterPricingDefaults(v)
	for key, envName := range pricingEnvBindings {
		if err := v.BindEnv(key, envName); err != nil {
			return nil, fmt.Errorf("bind %s: %w", envName, err)
		}
	}
	return &PricingProvider{settings: v}, nil
}

// RegisterPricingDefaults installs the stock tariff as viper defaults.
func RegisterPricingDefaults(v *viper.Viper) {
	defaults := parking.DefaultPricingSettings()
	v.SetDefault(KeyGracePeriodMinutes, defaults.GracePeriodMinutes)
	v.SetDefault(KeyRateCar, defaults.HourlyRates[parking.VehicleCar].Float64())
	v.SetDefault(KeyRateBike, defaults.HourlyRates[parking.VehicleBike].Float64())
	v.SetDefault(KeyRateTruck, defaults.HourlyRates[parking.VehicleTruck].Float64())
	v.SetDefault(KeySurgeEnabled, defaults.Surge.Enabled)
	v.SetDefault(KeySurgeMultiplier, defaults.Surge.Multiplier)
	v.SetDefault(KeySurgeStartHour, defaults.Surge.StartHour)
	v.SetDefault(KeySurgeEndHour, defaults.Surge.EndHour)
	v.SetDefault(KeyNightEnabled, defaults.Night.Enabled)
	v.SetDefault(KeyNightMultiplier, defaults.Night.Multiplier)
	v.SetDefault(KeyNightStartHour, defaults.Night.StartHour)
	v.SetDefault(KeyNightEndHour, defaults.Night.EndHour)
	v.SetDefault(KeyTimezone, timezoneLocal)
}

// PricingSettings implements parking.SettingsProvider.
func (provider *PricingProvider) PricingSettings(ctx context.Context) (parking.PricingSettings, error) {
	if err := ctx.Err(); err != nil {
		return parking.PricingSettings{}, err
	}
	location, err := loadLocation(provider.settings.GetString(KeyTimezone))
	if err != nil {
		return parking.PricingSettings{}, err
	}
	settings := parking.PricingSettings{
		GracePeriodMinutes: provider.settings.GetInt(KeyGracePeriodMinutes),
		HourlyRates: map[parking.VehicleCategory]parking.AmountCents{
			parking.VehicleCar:   unitsToCents(provider.settings.GetFloat64(KeyRateCar)),
			parking.VehicleBike:  unitsToCents(provider.settings.GetFloat64(KeyRateBike)),
			parking.VehicleTruck: unitsToCents(provider.settings.GetFloat64(KeyRateTruck)),
		},
		Surge: parking.RateWindow{
			Enabled:    provider.settings.GetBool(KeySurgeEnabled),
			Multiplier: provider.settings.GetFloat64(KeySurgeMultiplier),
			StartHour:  provider.settings.GetInt(KeySurgeStartHour),
			EndHour:    provider.settings.GetInt(KeySurgeEndHour),
		},
		Night: parking.RateWindow{
			Enabled:    provider.settings.GetBool(KeyNightEnabled),
			Multiplier: provider.settings.GetFloat64(KeyNightMultiplier),
			StartHour:  provider.settings.GetInt(KeyNightStartHour),
			EndHour:    provider.settings.GetInt(KeyNightEndHour),
		},
		Location: location,
	}
	if err := settings.Validate(); err != nil {
		return parking.PricingSettings{}, err
	}
	return settings, nil
}

func loadLocation(name string) (*time.Location, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed == timezoneLocal {
		return time.Local, nil
	}
	location, err := time.LoadLocation(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", parking.ErrInvalidPricingSettings, trimmed, err)
	}
	return location, nil
}

func unitsToCents(units float64) parking.AmountCents {
	return parking.AmountCents(math.Round(units * centsPerUnit))
}
