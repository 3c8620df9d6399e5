package docstore

var (
	dbPrefix       = []byte("db/")
	metaPrefix     = []byte("meta/")
	settingsPrefix = []byte("settings/")
)

func dbKey(id string) []byte {
	k := make([]byte, 0, len(dbPrefix)+len(id))
	return append(append(k, dbPrefix...), id...)
}

func metaKey(id string) []byte {
	k := make([]byte, 0, len(metaPrefix)+len(id))
	return append(append(k, metaPrefix...), id...)
}

func settingsKey(name string) []byte {
	k := make([]byte, 0, len(settingsPrefix)+len(name))
	return append(append(k, settingsPrefix...), name...)
}

func dbScanBounds() (low, high []byte) {
	low = append([]byte(nil), dbPrefix...)
	high = append(append([]byte(nil), dbPrefix...), 0xff)
	return low, high
}
