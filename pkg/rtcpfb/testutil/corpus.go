package testutil

import (
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// CorpusEntry is one compound RTCP packet of a corpus together with what a
// decoder is expected to make of it.
type CorpusEntry struct {
	// Name identifies the entry in test output.
	Name string `json:"name"`

	// Hex is the compound packet, hex encoded.
	Hex string `json:"hex"`

	// Packets is the number of sub-packets expected to decode.
	Packets int `json:"packets"`

	// Malformed is set when the walk over the compound packet is expected
	// to stop with an error.
	Malformed bool `json:"malformed"`
}

// Bytes decodes the entry's packet.
func (e CorpusEntry) Bytes() ([]byte, error) {
	b, err := hex.DecodeString(e.Hex)
	if err != nil {
		return nil, errors.Wrapf(err, "entry %q", e.Name)
	}
	return b, nil
}

// Corpus is a set of RTCP packets, either captured from browsers or crafted
// to hit edge cases of the decoder.
type Corpus struct {
	// Name is a short identifier for the corpus.
	Name string `json:"name"`

	// Description explains where the packets came from.
	Description string `json:"description"`

	// Entries is the ordered list of packets.
	Entries []CorpusEntry `json:"entries"`
}

// LoadCorpus reads a corpus from a JSON file.
//
// File format:
//
//	{
//	    "name": "corpus_name",
//	    "description": "Where the packets came from",
//	    "entries": [
//	        {"name": "fir", "hex": "8ace0004...", "packets": 1, "malformed": false},
//	        ...
//	    ]
//	}
func LoadCorpus(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read corpus file %s", path)
	}

	var corpus Corpus
	if err := json.Unmarshal(data, &corpus); err != nil {
		return nil, errors.Wrapf(err, "failed to parse corpus file %s", path)
	}
	return &corpus, nil
}

// Decoder decodes one compound packet and reports how many sub-packets it
// produced. This keeps Replay independent of the decoder under test.
type Decoder func(data []byte) (packets int, err error)

// ReplayResult is the outcome of decoding one corpus entry.
type ReplayResult struct {
	Entry   CorpusEntry
	Packets int
	Err     error
}

// Mismatch reports whether the result differs from what the entry expects.
func (r ReplayResult) Mismatch() bool {
	return r.Packets != r.Entry.Packets || (r.Err != nil) != r.Entry.Malformed
}

// Replay decodes every entry of the corpus with decode.
// The returned slice has the same length as c.Entries.
func (c *Corpus) Replay(decode Decoder) ([]ReplayResult, error) {
	results := make([]ReplayResult, len(c.Entries))
	for i, entry := range c.Entries {
		data, err := entry.Bytes()
		if err != nil {
			return nil, err
		}
		n, err := decode(data)
		results[i] = ReplayResult{Entry: entry, Packets: n, Err: err}
	}
	return results, nil
}
