package codec

import (
	"sort"

	"ycrdt/common"
)

// EncodeStateVector writes sv as length-prefixed (client, clock) pairs
// sorted by ascending client id. An empty state vector encodes to a
// single VarUint(0).
func EncodeStateVector(sv map[common.ClientID]common.Clock) []byte {
	w := NewWriter()
	clients := make([]common.ClientID, 0, len(sv))
	for c := range sv {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i] < clients[j] })

	w.WriteVarUint(uint64(len(clients)))
	for _, c := range clients {
		w.WriteVarUint(uint64(c))
		w.WriteVarUint(uint64(sv[c]))
	}
	return w.Bytes()
}

// DecodeStateVector parses bytes written by EncodeStateVector. An empty
// byte slice decodes to an empty (not nil) map, which callers treat as a
// request for full history.
func DecodeStateVector(data []byte) (map[common.ClientID]common.Clock, error) {
	sv := make(map[common.ClientID]common.Clock)
	if len(data) == 0 {
		return sv, nil
	}
	r := NewReader(data)
	n, err := r.ReadVarUint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		client, err := r.ReadVarUint()
		if err != nil {
			return nil, err
		}
		clock, err := r.ReadVarUint()
		if err != nil {
			return nil, err
		}
		sv[common.ClientID(client)] = common.Clock(clock)
	}
	return sv, nil
}
