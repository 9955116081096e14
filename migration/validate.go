package migration

// Verifier decides whether a loaded unit may take part in a run.
type Verifier[DB any] func(unit Unit[DB]) bool

// MetaSkip is the Meta key honoured by SkipTagged.
const MetaSkip = "skip"

// IsValid reports whether the unit has both actions.
func IsValid[DB any](unit Unit[DB]) bool {
	return unit.Up != nil && unit.Down != nil
}

// SkipTagged is IsValid that additionally rejects units tagged skip=true.
func SkipTagged[DB any](unit Unit[DB]) bool {
	return IsValid(unit) && unit.Meta[MetaSkip] != "true"
}
