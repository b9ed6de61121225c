package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"beni/internal/core"
)

// assetRequest is the JSON payload for creating an asset.
type assetRequest struct {
	Nome            string            `json:"nome"`
	Categoria       string            `json:"categoria"`
	PrezzoAcquisto  string            `json:"prezzo_acquisto"`
	DataAcquisto    string            `json:"data_acquisto"`
	VitaUtileAnni   string            `json:"vita_utile_anni"`
	ValoreResiduo   string            `json:"valore_residuo,omitempty"`
	CostiFissiAnnui map[string]string `json:"costi_fissi_annui,omitempty"`

	Veicolo     *vehiclePayload   `json:"veicolo,omitempty"`
	Apparecchio *equipmentPayload `json:"apparecchio,omitempty"`
	Immobile    *propertyPayload  `json:"immobile,omitempty"`
}

type vehiclePayload struct {
	Carburante        string `json:"carburante"`
	ConsumoPer100     string `json:"consumo_per_100,omitempty"`
	ManutenzionePerKm string `json:"manutenzione_per_km,omitempty"`
	KmAnnuiPrevisti   string `json:"km_annui_previsti,omitempty"`
}

type equipmentPayload struct {
	PotenzaWatt   string `json:"potenza_watt,omitempty"`
	TariffaOraria string `json:"tariffa_oraria,omitempty"`
}

type propertyPayload struct {
	SuperficieMq string `json:"superficie_mq,omitempty"`
}

type assetResponse struct {
	ID              int64             `json:"id"`
	Nome            string            `json:"nome"`
	Categoria       string            `json:"categoria"`
	Unita           string            `json:"unita"`
	PrezzoAcquisto  string            `json:"prezzo_acquisto"`
	DataAcquisto    string            `json:"data_acquisto"`
	VitaUtileAnni   string            `json:"vita_utile_anni"`
	ValoreResiduo   string            `json:"valore_residuo"`
	CostiFissiAnnui map[string]string `json:"costi_fissi_annui,omitempty"`

	Veicolo     *vehiclePayload   `json:"veicolo,omitempty"`
	Apparecchio *equipmentPayload `json:"apparecchio,omitempty"`
	Immobile    *propertyPayload  `json:"immobile,omitempty"`
}

func (req assetRequest) toProfile() (core.AssetProfile, error) {
	priceCents, err := core.ParseDecimalToCents(req.PrezzoAcquisto)
	if err != nil {
		return core.AssetProfile{}, fmt.Errorf("prezzo_acquisto: %w", err)
	}
	purchaseDate, err := parseDate(req.DataAcquisto)
	if err != nil {
		return core.AssetProfile{}, fmt.Errorf("data_acquisto: %w", core.ErrInvalidAmount)
	}
	life, err := decimal.NewFromString(strings.TrimSpace(req.VitaUtileAnni))
	if err != nil {
		return core.AssetProfile{}, fmt.Errorf("vita_utile_anni: %w", core.ErrInvalidUsefulLife)
	}

	a := core.AssetProfile{
		Name:            strings.TrimSpace(req.Nome),
		Category:        core.AssetCategory(req.Categoria),
		PurchasePrice:   core.Money{Cents: priceCents},
		PurchaseDate:    purchaseDate,
		UsefulLifeYears: life,
	}

	if req.ValoreResiduo != "" {
		residualCents, err := core.ParseDecimalToCents(req.ValoreResiduo)
		if err != nil {
			return core.AssetProfile{}, fmt.Errorf("valore_residuo: %w", err)
		}
		a.ResidualValue = core.Money{Cents: residualCents}
	}

	for label, amount := range req.CostiFissiAnnui {
		cents, err := core.ParseDecimalToCents(amount)
		if err != nil {
			return core.AssetProfile{}, fmt.Errorf("costi_fissi_annui[%s]: %w", label, err)
		}
		if a.AnnualFixedCosts == nil {
			a.AnnualFixedCosts = make(map[string]core.Money)
		}
		a.AnnualFixedCosts[label] = core.Money{Cents: cents}
	}

	if req.Veicolo != nil {
		spec := &core.VehicleSpec{FuelType: core.FuelType(req.Veicolo.Carburante)}
		if spec.ConsumptionPer100, err = optionalDecimal(req.Veicolo.ConsumoPer100, "consumo_per_100"); err != nil {
			return core.AssetProfile{}, err
		}
		if spec.MaintenancePerKm, err = optionalDecimal(req.Veicolo.ManutenzionePerKm, "manutenzione_per_km"); err != nil {
			return core.AssetProfile{}, err
		}
		if spec.ExpectedAnnualKm, err = optionalDecimal(req.Veicolo.KmAnnuiPrevisti, "km_annui_previsti"); err != nil {
			return core.AssetProfile{}, err
		}
		a.Vehicle = spec
	}
	if req.Apparecchio != nil {
		spec := &core.EquipmentSpec{}
		if spec.PowerWatts, err = optionalDecimal(req.Apparecchio.PotenzaWatt, "potenza_watt"); err != nil {
			return core.AssetProfile{}, err
		}
		if spec.HourlyRate, err = optionalDecimal(req.Apparecchio.TariffaOraria, "tariffa_oraria"); err != nil {
			return core.AssetProfile{}, err
		}
		a.Equipment = spec
	}
	if req.Immobile != nil {
		spec := &core.PropertySpec{}
		if spec.AreaSqm, err = optionalDecimal(req.Immobile.SuperficieMq, "superficie_mq"); err != nil {
			return core.AssetProfile{}, err
		}
		a.Property = spec
	}

	return a, nil
}

func optionalDecimal(s, field string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%s: %w", field, core.ErrInvalidAmount)
	}
	return decimal.NewNullDecimal(d), nil
}

func toAssetResponse(a core.AssetProfile) assetResponse {
	resp := assetResponse{
		ID:             a.ID,
		Nome:           a.Name,
		Categoria:      string(a.Category),
		Unita:          a.Category.UsageUnit(),
		PrezzoAcquisto: euros(a.PurchasePrice),
		DataAcquisto:   a.PurchaseDate.Format("2006-01-02"),
		VitaUtileAnni:  a.UsefulLifeYears.String(),
		ValoreResiduo:  euros(a.ResidualValue),
	}
	for label, amount := range a.AnnualFixedCosts {
		if resp.CostiFissiAnnui == nil {
			resp.CostiFissiAnnui = make(map[string]string)
		}
		resp.CostiFissiAnnui[label] = euros(amount)
	}
	if v := a.Vehicle; v != nil {
		resp.Veicolo = &vehiclePayload{
			Carburante:        string(v.FuelType),
			ConsumoPer100:     nullDecimalString(v.ConsumptionPer100),
			ManutenzionePerKm: nullDecimalString(v.MaintenancePerKm),
			KmAnnuiPrevisti:   nullDecimalString(v.ExpectedAnnualKm),
		}
	}
	if e := a.Equipment; e != nil {
		resp.Apparecchio = &equipmentPayload{
			PotenzaWatt:   nullDecimalString(e.PowerWatts),
			TariffaOraria: nullDecimalString(e.HourlyRate),
		}
	}
	if p := a.Property; p != nil {
		resp.Immobile = &propertyPayload{SuperficieMq: nullDecimalString(p.AreaSqm)}
	}
	return resp
}

func nullDecimalString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "payload JSON non valido")
		return
	}

	asset, err := req.toProfile()
	if err != nil {
		respondError(w, r, err)
		return
	}

	created, err := s.svc.CreateAsset(r.Context(), asset)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssetResponse(created))
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.svc.ListAssets(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := make([]assetResponse, 0, len(assets))
	for _, a := range assets {
		resp = append(resp, toAssetResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}

	asset, err := s.svc.GetAsset(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(asset))
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}

	if err := s.svc.DeleteAsset(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	s.bumpRevision(id)
	w.WriteHeader(http.StatusNoContent)
}

// eventRequest is the JSON payload for recording or editing a usage event.
type eventRequest struct {
	Data           string `json:"data"`
	Descrizione    string `json:"descrizione"`
	Categoria      string `json:"categoria,omitempty"`
	Importo        string `json:"importo"`
	Quantita       string `json:"quantita,omitempty"`
	PrezzoUnitario string `json:"prezzo_unitario,omitempty"`
}

type eventResponse struct {
	ID             int64  `json:"id"`
	BeneID         int64  `json:"bene_id"`
	Data           string `json:"data"`
	Descrizione    string `json:"descrizione"`
	Categoria      string `json:"categoria,omitempty"`
	Importo        string `json:"importo"`
	Quantita       string `json:"quantita"`
	PrezzoUnitario string `json:"prezzo_unitario,omitempty"`
	Versione       int64  `json:"versione"`
}

func (req eventRequest) toEvent(assetID int64) (core.UsageEvent, error) {
	amountCents, err := core.ParseDecimalToCents(req.Importo)
	if err != nil {
		return core.UsageEvent{}, fmt.Errorf("importo: %w", err)
	}

	occurred, err := parseEventTime(req.Data)
	if err != nil {
		return core.UsageEvent{}, fmt.Errorf("data: %w", core.ErrZeroOccurredAt)
	}

	e := core.UsageEvent{
		AssetID:      assetID,
		OccurredAt:   occurred,
		Description:  strings.TrimSpace(req.Descrizione),
		Category:     strings.TrimSpace(req.Categoria),
		DirectAmount: core.Money{Cents: amountCents},
	}

	if q := strings.TrimSpace(req.Quantita); q != "" {
		e.UsageQuantity, err = decimal.NewFromString(strings.ReplaceAll(q, ",", "."))
		if err != nil {
			return core.UsageEvent{}, fmt.Errorf("quantita: %w", core.ErrInvalidAmount)
		}
	}
	if e.UnitPriceOverride, err = optionalDecimal(req.PrezzoUnitario, "prezzo_unitario"); err != nil {
		return core.UsageEvent{}, err
	}
	return e, nil
}

// parseEventTime accepts both a full RFC 3339 timestamp and a plain date.
func parseEventTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func toEventResponse(e core.UsageEvent) eventResponse {
	return eventResponse{
		ID:             e.ID,
		BeneID:         e.AssetID,
		Data:           e.OccurredAt.UTC().Format(time.RFC3339),
		Descrizione:    e.Description,
		Categoria:      e.Category,
		Importo:        euros(e.DirectAmount),
		Quantita:       e.UsageQuantity.String(),
		PrezzoUnitario: nullDecimalString(e.UnitPriceOverride),
		Versione:       e.Version,
	}
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	assetID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "payload JSON non valido")
		return
	}

	event, err := req.toEvent(assetID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	created, err := s.svc.RecordEvent(r.Context(), event)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.bumpRevision(assetID)
	writeJSON(w, http.StatusCreated, toEventResponse(created))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	assetID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}

	events, err := s.svc.ListEvents(r.Context(), assetID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := make([]eventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, toEventResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}

	current, err := s.svc.GetEvent(r.Context(), eventID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "payload JSON non valido")
		return
	}

	event, err := req.toEvent(current.AssetID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	event.ID = eventID

	updated, err := s.svc.UpdateEvent(r.Context(), event)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.bumpRevision(current.AssetID)
	writeJSON(w, http.StatusOK, toEventResponse(updated))
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}

	event, err := s.svc.GetEvent(r.Context(), eventID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.svc.DeleteEvent(r.Context(), eventID); err != nil {
		respondError(w, r, err)
		return
	}
	s.bumpRevision(event.AssetID)
	w.WriteHeader(http.StatusNoContent)
}
