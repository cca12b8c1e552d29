package game

// Tuning holds every timing and distance constant of the simulation. All
// durations are milliseconds, speeds are pixels per second. The zero value
// is not useful; start from DefaultTuning and override fields.
type Tuning struct {
	WalkSpeed   float64 `yaml:"walk_speed"`
	BubbleMs    float64 `yaml:"bubble_ms"`
	BubbleChars int     `yaml:"bubble_chars"`

	CelebrateMs float64 `yaml:"celebrate_ms"`
	ErrorMs     float64 `yaml:"error_ms"`

	DeliveryPickupMs  float64 `yaml:"delivery_pickup_ms"`
	DeliveryMessageMs float64 `yaml:"delivery_message_ms"`
	DeliveryNodMs     float64 `yaml:"delivery_nod_ms"`

	CeremonyCelebrateMs float64 `yaml:"ceremony_celebrate_ms"`
	CeremonySparkleMs   float64 `yaml:"ceremony_sparkle_ms"`
	CeremonySleepMs     float64 `yaml:"ceremony_sleep_ms"`

	IdleSleepMs float64 `yaml:"idle_sleep_ms"`

	WanderPauseMinMs float64 `yaml:"wander_pause_min_ms"`
	WanderPauseMaxMs float64 `yaml:"wander_pause_max_ms"`
	WanderMovesMin   int     `yaml:"wander_moves_min"`
	WanderMovesMax   int     `yaml:"wander_moves_max"`
	WanderRestMinMs  float64 `yaml:"wander_rest_min_ms"`
	WanderRestMaxMs  float64 `yaml:"wander_rest_max_ms"`
	WanderHopLimit   int     `yaml:"wander_hop_limit"`

	ZzzEveryMs  float64 `yaml:"zzz_every_ms"`
	SnowEveryMs float64 `yaml:"snow_every_ms"`

	ConveyorSpeed float64 `yaml:"conveyor_speed"` // belt lengths per second
	ConveyorMax   int     `yaml:"conveyor_max"`
	DoorRadius    float64 `yaml:"door_radius"` // tiles
	DoorAnimMs    float64 `yaml:"door_anim_ms"`
}

// DefaultTuning returns the built-in constants.
func DefaultTuning() Tuning {
	return Tuning{
		WalkSpeed:   96,
		BubbleMs:    3000,
		BubbleChars: 48,

		CelebrateMs: 2500,
		ErrorMs:     4000,

		DeliveryPickupMs:  600,
		DeliveryMessageMs: 2500,
		DeliveryNodMs:     800,

		CeremonyCelebrateMs: 2000,
		CeremonySparkleMs:   1200,
		CeremonySleepMs:     1500,

		IdleSleepMs: 45000,

		WanderPauseMinMs: 2000,
		WanderPauseMaxMs: 5000,
		WanderMovesMin:   2,
		WanderMovesMax:   4,
		WanderRestMinMs:  8000,
		WanderRestMaxMs:  15000,
		WanderHopLimit:   20,

		ZzzEveryMs:  1400,
		SnowEveryMs: 120,

		ConveyorSpeed: 0.12,
		ConveyorMax:   8,
		DoorRadius:    2,
		DoorAnimMs:    250,
	}
}

// Merge returns t with every non-zero field of o applied on top.
func (t Tuning) Merge(o Tuning) Tuning {
	setF := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	setI := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	setF(&t.WalkSpeed, o.WalkSpeed)
	setF(&t.BubbleMs, o.BubbleMs)
	setI(&t.BubbleChars, o.BubbleChars)
	setF(&t.CelebrateMs, o.CelebrateMs)
	setF(&t.ErrorMs, o.ErrorMs)
	setF(&t.DeliveryPickupMs, o.DeliveryPickupMs)
	setF(&t.DeliveryMessageMs, o.DeliveryMessageMs)
	setF(&t.DeliveryNodMs, o.DeliveryNodMs)
	setF(&t.CeremonyCelebrateMs, o.CeremonyCelebrateMs)
	setF(&t.CeremonySparkleMs, o.CeremonySparkleMs)
	setF(&t.CeremonySleepMs, o.CeremonySleepMs)
	setF(&t.IdleSleepMs, o.IdleSleepMs)
	setF(&t.WanderPauseMinMs, o.WanderPauseMinMs)
	setF(&t.WanderPauseMaxMs, o.WanderPauseMaxMs)
	setI(&t.WanderMovesMin, o.WanderMovesMin)
	setI(&t.WanderMovesMax, o.WanderMovesMax)
	setF(&t.WanderRestMinMs, o.WanderRestMinMs)
	setF(&t.WanderRestMaxMs, o.WanderRestMaxMs)
	setI(&t.WanderHopLimit, o.WanderHopLimit)
	setF(&t.ZzzEveryMs, o.ZzzEveryMs)
	setF(&t.SnowEveryMs, o.SnowEveryMs)
	setF(&t.ConveyorSpeed, o.ConveyorSpeed)
	setI(&t.ConveyorMax, o.ConveyorMax)
	setF(&t.DoorRadius, o.DoorRadius)
	setF(&t.DoorAnimMs, o.DoorAnimMs)
	return t
}
