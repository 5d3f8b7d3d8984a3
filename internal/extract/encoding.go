package extract

import (
	"golang.org/x/text/encoding/charmap"
)

// fallbackDecoders are tried in order after UTF-8 validation fails:
// Latin-1 first, then CP1252. Latin-1 and ISO-8859-1 share a charmap,
// so the single entry covers both steps of the documented chain.
var fallbackDecoders = []func([]byte) (string, error){
	decodeWith(charmap.ISO8859_1),
	decodeWith(charmap.Windows1252),
}

func decodeWith(cm *charmap.Charmap) func([]byte) (string, error) {
	return func(data []byte) (string, error) {
		decoded, err := cm.NewDecoder().Bytes(data)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}
}
