package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/golibs/errors"
)

// Lease is a DHCP lease as used by the HTTP API.
type Lease struct {
	// Expiry is absent for the infinite and uncommitted leases.
	Expiry *JSONTime `json:"expiry,omitempty"`

	IP         netip.Addr `json:"ip"`
	HWAddr     string     `json:"hwaddr,omitempty"`
	ClientID   string     `json:"client_id,omitempty"`
	Resource   string     `json:"resource"`
	IsStatic   bool       `json:"static"`
	IsBOOTP    bool       `json:"bootp"`
	IsComplete bool       `json:"complete"`
	IsInfinite bool       `json:"infinite"`
}

// newLease converts l into the HTTP API form.
func newLease(l *dhcpsvc.Lease) (res *Lease) {
	res = &Lease{
		IP:         l.IP,
		Resource:   l.Resource,
		IsStatic:   l.IsStatic,
		IsBOOTP:    l.IsBOOTP,
		IsComplete: l.IsComplete,
		IsInfinite: l.IsInfinite,
	}

	if len(l.HWAddr) > 0 {
		res.HWAddr = l.HWAddr.String()
	}

	if len(l.ClientID.ID) > 0 {
		res.ClientID = l.ClientID.String()
	}

	if !l.Expiry.IsZero() {
		exp := JSONTime(l.Expiry)
		res.Expiry = &exp
	}

	return res
}

// RespGetV1Leases describes the response to the GET /api/v1/leases HTTP API.
type RespGetV1Leases struct {
	Leases []*Lease `json:"leases"`
}

// handleGetV1Leases is the handler for the GET /api/v1/leases HTTP API.
func (svc *Service) handleGetV1Leases(w http.ResponseWriter, r *http.Request) {
	ls := svc.dhcp.Leases()

	resp := &RespGetV1Leases{
		Leases: make([]*Lease, 0, len(ls)),
	}

	for _, l := range ls {
		resp.Leases = append(resp.Leases, newLease(l))
	}

	svc.writeJSONResponse(w, r, http.StatusOK, resp)
}

// errNoLease is returned when there is no lease for the requested address.
const errNoLease errors.Error = "no lease"

// handleGetV1Lease is the handler for the GET /api/v1/leases/{ip} HTTP API.
func (svc *Service) handleGetV1Lease(w http.ResponseWriter, r *http.Request) {
	ip, err := netip.ParseAddr(r.PathValue("ip"))
	if err != nil {
		svc.writeJSONError(w, r, http.StatusBadRequest, err)

		return
	}

	l, ok := svc.dhcp.LeaseByIP(ip)
	if !ok {
		svc.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("%s: %w", ip, errNoLease))

		return
	}

	svc.writeJSONResponse(w, r, http.StatusOK, newLease(l))
}

// RespPostV1Resources describes the response to the POST /api/v1/resources
// HTTP API.
type RespPostV1Resources struct {
	// Added is the number of the resources the entry has been expanded to.
	Added int `json:"added"`
}

// handlePostV1Resources is the handler for the POST /api/v1/resources HTTP
// API.  The request body is a single address pool entry.
func (svc *Service) handlePostV1Resources(w http.ResponseWriter, r *http.Request) {
	e := &dhcpsvc.PoolEntry{}
	err := json.NewDecoder(r.Body).Decode(e)
	if err != nil {
		svc.writeJSONError(w, r, http.StatusBadRequest, fmt.Errorf("decoding: %w", err))

		return
	}

	n, err := svc.dhcp.AddResource(r.Context(), e)
	if err != nil {
		svc.writeJSONError(w, r, http.StatusUnprocessableEntity, err)

		return
	}

	svc.writeJSONResponse(w, r, http.StatusOK, &RespPostV1Resources{
		Added: n,
	})
}
