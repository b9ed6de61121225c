package http

import (
	"net/http"

	"beni/internal/core"
	"beni/internal/services"
)

type componentPayload struct {
	Tipo     string            `json:"tipo"`
	Voce     string            `json:"voce"`
	Importo  string            `json:"importo"`
	Dettagli map[string]string `json:"dettagli,omitempty"`
}

type decompositionPayload struct {
	EventoID      int64              `json:"evento_id"`
	CostoDiretto  string             `json:"costo_diretto"`
	CostoNascosto string             `json:"costo_nascosto"`
	CostoTotale   string             `json:"costo_totale"`
	Parziale      bool               `json:"parziale"`
	Componenti    []componentPayload `json:"componenti"`
}

func toDecompositionPayload(d core.CostDecomposition) decompositionPayload {
	p := decompositionPayload{
		EventoID:      d.EventID,
		CostoDiretto:  euros(d.DirectCost),
		CostoNascosto: euros(d.HiddenCost),
		CostoTotale:   euros(d.TotalCost),
		Parziale:      d.Partial,
		Componenti:    make([]componentPayload, 0, len(d.Components)),
	}
	for _, c := range d.Components {
		p.Componenti = append(p.Componenti, componentPayload{
			Tipo:     string(c.Kind),
			Voce:     c.Label,
			Importo:  euros(c.Amount),
			Dettagli: c.Detail,
		})
	}
	return p
}

// handleDecomposition returns the per-event cost breakdown of every event
// of an asset.
func (s *Server) handleDecomposition(w http.ResponseWriter, r *http.Request) {
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

	resp := make([]decompositionPayload, 0, len(events))
	for _, e := range events {
		d, err := s.svc.Decompose(r.Context(), e.ID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		resp = append(resp, toDecompositionPayload(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

type tcoResponse struct {
	BeneID        int64             `json:"bene_id"`
	Al            string            `json:"al"`
	CostiDiretti  map[string]string `json:"costi_diretti"`
	CostiFissi    string            `json:"costi_fissi"`
	Ammortamento  string            `json:"ammortamento"`
	ValoreResiduo string            `json:"valore_residuo"`
	TCOTotale     string            `json:"tco_totale"`
	Parziale      bool              `json:"parziale"`
	Metriche      map[string]any    `json:"metriche"`
}

func toTCOResponse(summary core.TCOSummary, category core.AssetCategory) tcoResponse {
	resp := tcoResponse{
		BeneID:        summary.AssetID,
		Al:            summary.AsOf.Format("2006-01-02"),
		CostiDiretti:  make(map[string]string, len(summary.DirectByCategory)),
		CostiFissi:    euros(summary.FixedCostsTotal),
		Ammortamento:  euros(summary.DepreciationTotal),
		ValoreResiduo: euros(summary.ResidualValue),
		TCOTotale:     euros(summary.TCOTotal),
		Parziale:      summary.Partial,
	}
	for cat, amount := range summary.DirectByCategory {
		resp.CostiDiretti[cat] = euros(amount)
	}

	unitMetrics := core.ComputeUnitMetrics(summary, summary.Metrics.TotalUsage, category)
	metrics := map[string]any{
		"anni_trascorsi":  summary.Metrics.ElapsedYears.StringFixed(2),
		"prezzo_acquisto": euros(summary.Metrics.PurchasePrice),
		"numero_eventi":   summary.Metrics.EventCount,
		"utilizzo_totale": summary.Metrics.TotalUsage.String(),
		"unita":           unitMetrics.Unit,
	}
	if unitMetrics.CostPerUnit.Valid {
		metrics["costo_per_"+unitMetrics.Unit] = unitMetrics.CostPerUnit.Decimal.StringFixed(2)
	}
	resp.Metriche = metrics
	return resp
}

func (s *Server) handleTCO(w http.ResponseWriter, r *http.Request) {
	assetID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}

	asOf, err := dateQuery(r, "al", services.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "parametro 'al' non valido, formato atteso YYYY-MM-DD")
		return
	}

	key := s.cacheKey(assetID, "tco", asOf.Format("2006-01-02"))
	if cached, ok := s.tcoCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	asset, err := s.svc.GetAsset(r.Context(), assetID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	summary, err := s.svc.TCO(r.Context(), assetID, asOf)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := toTCOResponse(summary, asset.Category)
	s.tcoCache.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

type seriesPoint struct {
	Etichetta string `json:"etichetta"`
	Totale    string `json:"totale"`
}

type seriesResponse struct {
	BeneID  int64         `json:"bene_id"`
	Periodo string        `json:"periodo"`
	Da      string        `json:"da"`
	A       string        `json:"a"`
	Punti   []seriesPoint `json:"punti"`
}

func (s *Server) handleCostSeries(w http.ResponseWriter, r *http.Request) {
	assetID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}

	bucket := core.Period(r.URL.Query().Get("periodo"))
	if bucket == "" {
		bucket = core.PeriodMonthly
	}
	if !bucket.IsValid() {
		writeError(w, http.StatusBadRequest, "parametro 'periodo' non valido: monthly o yearly")
		return
	}

	asset, err := s.svc.GetAsset(r.Context(), assetID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	from, err := dateQuery(r, "da", core.DateOf(asset.PurchaseDate.Time))
	if err != nil {
		writeError(w, http.StatusBadRequest, "parametro 'da' non valido, formato atteso YYYY-MM-DD")
		return
	}
	to, err := dateQuery(r, "a", services.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "parametro 'a' non valido, formato atteso YYYY-MM-DD")
		return
	}
	if to.Before(from.Time) {
		writeError(w, http.StatusBadRequest, "intervallo non valido: 'a' precede 'da'")
		return
	}

	key := s.cacheKey(assetID, "serie", string(bucket),
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	if cached, ok := s.seriesCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	seq, err := s.svc.CostSeries(r.Context(), assetID, bucket, from, to)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := seriesResponse{
		BeneID:  assetID,
		Periodo: string(bucket),
		Da:      from.Format("2006-01-02"),
		A:       to.Format("2006-01-02"),
		Punti:   []seriesPoint{},
	}
	for p := range seq {
		resp.Punti = append(resp.Punti, seriesPoint{
			Etichetta: p.Label,
			Totale:    euros(p.Total),
		})
	}

	s.seriesCache.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}
