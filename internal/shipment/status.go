package shipment

import (
	"strings"

	"github.com/tournevent/shipping/pkg/shipper"
)

// One adapter table per carrier family. Native strings never leave this file.
var statusTables = map[shipper.Variant]map[string]Status{
	shipper.VariantAggregator: {
		"UNKNOWN":     StatusPending,
		"PRE_TRANSIT": StatusLabelCreated,
		"TRANSIT":     StatusInTransit,
		"DELIVERED":   StatusDelivered,
		"RETURNED":    StatusReturned,
		"FAILURE":     StatusFailed,
	},
	shipper.VariantDirect: {
		"80": StatusLabelCreated,
		"81": StatusInTransit,
		"82": StatusDelivered,
		"83": StatusFailed,
	},
}

// MapNativeStatus maps a carrier-native status of the given family. ok is false
// for strings the family does not know.
func MapNativeStatus(family shipper.Variant, native string) (Status, bool) {
	table, found := statusTables[family]
	if !found {
		return "", false
	}
	s, ok := table[strings.ToUpper(strings.TrimSpace(native))]
	return s, ok
}
