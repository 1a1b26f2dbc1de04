package models

// PriceVariant names a printing variant in the upstream tcgplayer price block
type PriceVariant string

const (
	VariantHolofoil           PriceVariant = "holofoil"
	Variant1stEditionHolofoil PriceVariant = "1stEditionHolofoil"
	VariantUnlimitedHolofoil  PriceVariant = "unlimitedHolofoil"
	VariantReverseHolofoil    PriceVariant = "reverseHolofoil"
	VariantNormal             PriceVariant = "normal"
)

// PriceVariantPriority returns the variants in the order the tracker prefers
// them when choosing a single price for a card. The first variant with a
// positive market price wins.
func PriceVariantPriority() []PriceVariant {
	return []PriceVariant{
		VariantHolofoil,
		Variant1stEditionHolofoil,
		VariantUnlimitedHolofoil,
		VariantReverseHolofoil,
		VariantNormal,
	}
}
