package mockserver

import (
	"sync"

	"github.com/form3tech-oss/pact-contract/pkg/contract"
)

// faultLog accumulates faults raised while serving requests.
type faultLog struct {
	mu     sync.Mutex
	faults []contract.Fault
}

func (f *faultLog) add(faults ...contract.Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, faults...)
}

func (f *faultLog) all() []contract.Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]contract.Fault(nil), f.faults...)
}

// unusedFaults lists the interactions that never received a request.
func unusedFaults(interactions []*Interaction) []contract.Fault {
	var faults []contract.Fault
	for _, interaction := range interactions {
		if interaction.HasRequests(1) {
			continue
		}
		id := interaction.Identity()
		faults = append(faults, contract.Fault{
			Kind:        contract.UnusedInteraction,
			Interaction: &id,
			Message:     "interaction was never invoked",
		})
	}
	return faults
}
