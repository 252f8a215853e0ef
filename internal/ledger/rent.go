package ledger

// Rent parameters, fixed at the values of a default cluster.
const (
	// AccountStorageOverhead is the per-record byte overhead charged on top of data length.
	AccountStorageOverhead uint64 = 128

	// LamportsPerByteYear is the rent rate.
	LamportsPerByteYear uint64 = 3480

	// ExemptionThresholdYears is how many years of rent make a record exempt.
	ExemptionThresholdYears uint64 = 2
)

// RentExemptMinimum returns the balance a record of the given data size needs
// to be rent exempt. CreateAccount refuses to create records below it.
func RentExemptMinimum(space uint64) uint64 {
	return (AccountStorageOverhead + space) * LamportsPerByteYear * ExemptionThresholdYears
}
