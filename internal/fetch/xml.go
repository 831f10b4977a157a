package fetch

import (
	"github.com/clbanning/mxj/v2"
)

// parseXML converts an XML document into a structural map. Attributes keep
// the "-" prefix and element text lands under "#text", so two parses of the
// same document always produce the same tree. The change detector compares
// the canonical JSON form of these trees byte-for-byte.
func parseXML(body []byte) (map[string]any, error) {
	m, err := mxj.NewMapXml(body)
	if err != nil {
		return nil, err
	}
	return map[string]any(m), nil
}
