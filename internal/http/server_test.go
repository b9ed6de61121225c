package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"beni/internal/core"
	"beni/internal/services"
	"beni/internal/storage/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	defaults := core.PriceDefaults{
		FuelPrices: map[core.FuelType]decimal.Decimal{
			core.FuelPetrol: decimal.RequireFromString("1.75"),
		},
		TariffPerKWh: decimal.NewNullDecimal(decimal.RequireFromString("0.25")),
	}
	svc := services.NewAssetService(memory.NewStore(), nil, defaults)
	s := NewServer(":0", svc)

	ts := httptest.NewServer(s.Server.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = s.Shutdown(context.Background())
	})
	return ts
}

func postJSON(t *testing.T, url string, payload string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

const vehiclePayloadJSON = `{
	"nome": "Auto di famiglia",
	"categoria": "vehicle",
	"prezzo_acquisto": "15000.00",
	"data_acquisto": "2023-01-15",
	"vita_utile_anni": "10",
	"valore_residuo": "3000.00",
	"costi_fissi_annui": {"assicurazione": "600.00"},
	"veicolo": {
		"carburante": "petrol",
		"consumo_per_100": "6.5",
		"manutenzione_per_km": "0.08"
	}
}`

func createVehicle(t *testing.T, ts *httptest.Server) int64 {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/beni", vehiclePayloadJSON)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create asset status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, resp, &created)
	return created.ID
}

func recordFuelEvent(t *testing.T, ts *httptest.Server, assetID int64) int64 {
	t.Helper()
	resp := postJSON(t, fmt.Sprintf("%s/api/beni/%d/eventi", ts.URL, assetID), `{
		"data": "2024-03-10T09:00:00Z",
		"descrizione": "Rifornimento",
		"categoria": "trasporti",
		"importo": "60.00",
		"quantita": "200",
		"prezzo_unitario": "1.85"
	}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create event status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, resp, &created)
	return created.ID
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestCreateAsset(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/beni", vehiclePayloadJSON)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var created assetResponse
	decodeBody(t, resp, &created)
	if created.ID == 0 {
		t.Error("created asset should have an ID")
	}
	if created.Unita != "km" {
		t.Errorf("unita = %q, want km", created.Unita)
	}
	if created.PrezzoAcquisto != "15000.00" {
		t.Errorf("prezzo_acquisto = %q, want 15000.00", created.PrezzoAcquisto)
	}
	if created.Veicolo == nil || created.Veicolo.ConsumoPer100 != "6.5" {
		t.Errorf("veicolo payload = %+v", created.Veicolo)
	}
}

func TestCreateAssetValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "malformed json",
			payload: `{"nome": `,
		},
		{
			name: "empty name",
			payload: `{"nome": " ", "categoria": "vehicle", "prezzo_acquisto": "100",
				"data_acquisto": "2023-01-15", "vita_utile_anni": "10",
				"veicolo": {"carburante": "petrol"}}`,
		},
		{
			name: "unknown category",
			payload: `{"nome": "X", "categoria": "boat", "prezzo_acquisto": "100",
				"data_acquisto": "2023-01-15", "vita_utile_anni": "10"}`,
		},
		{
			name: "residual above purchase",
			payload: `{"nome": "X", "categoria": "vehicle", "prezzo_acquisto": "100",
				"data_acquisto": "2023-01-15", "vita_utile_anni": "10",
				"valore_residuo": "200", "veicolo": {"carburante": "petrol"}}`,
		},
		{
			name: "missing spec",
			payload: `{"nome": "X", "categoria": "vehicle", "prezzo_acquisto": "100",
				"data_acquisto": "2023-01-15", "vita_utile_anni": "10"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/beni", tt.payload)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestGetAssetNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/beni/999")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDecompositionEndpoint(t *testing.T) {
	ts := newTestServer(t)
	assetID := createVehicle(t, ts)
	recordFuelEvent(t, ts, assetID)

	resp, err := http.Get(fmt.Sprintf("%s/api/beni/%d/scomposizione", ts.URL, assetID))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var decomps []decompositionPayload
	decodeBody(t, resp, &decomps)
	if len(decomps) != 1 {
		t.Fatalf("got %d decompositions, want 1", len(decomps))
	}

	d := decomps[0]
	if d.CostoDiretto != "60.00" {
		t.Errorf("costo_diretto = %q, want 60.00", d.CostoDiretto)
	}
	// 200 km: fuel 13 l at 1.85 = 24.05, maintenance 200 * 0.08 = 16.00
	if d.CostoNascosto != "40.05" {
		t.Errorf("costo_nascosto = %q, want 40.05", d.CostoNascosto)
	}
	if d.CostoTotale != "100.05" {
		t.Errorf("costo_totale = %q, want 100.05", d.CostoTotale)
	}
	if d.Parziale {
		t.Error("parziale should be false with all coefficients configured")
	}
	if len(d.Componenti) != 2 {
		t.Fatalf("got %d componenti, want 2", len(d.Componenti))
	}
	if d.Componenti[0].Voce != "Carburante" || d.Componenti[0].Importo != "24.05" {
		t.Errorf("first component = %+v", d.Componenti[0])
	}
	if d.Componenti[1].Voce != "Manutenzione" || d.Componenti[1].Importo != "16.00" {
		t.Errorf("second component = %+v", d.Componenti[1])
	}
}

func TestTCOEndpoint(t *testing.T) {
	ts := newTestServer(t)
	assetID := createVehicle(t, ts)
	recordFuelEvent(t, ts, assetID)

	// Exactly one year of ownership
	resp, err := http.Get(fmt.Sprintf("%s/api/beni/%d/tco?al=2024-01-15", ts.URL, assetID))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var tco tcoResponse
	decodeBody(t, resp, &tco)

	if tco.CostiDiretti["trasporti"] != "60.00" {
		t.Errorf("costi_diretti[trasporti] = %q, want 60.00", tco.CostiDiretti["trasporti"])
	}
	if tco.ValoreResiduo != "3000.00" {
		t.Errorf("valore_residuo = %q, want 3000.00", tco.ValoreResiduo)
	}
	if tco.Parziale {
		t.Error("parziale should be false")
	}
	if _, ok := tco.Metriche["costo_per_km"]; !ok {
		t.Error("metriche should contain costo_per_km with recorded usage")
	}
	if tco.Metriche["unita"] != "km" {
		t.Errorf("metriche.unita = %v, want km", tco.Metriche["unita"])
	}
}

func TestTCOBadDate(t *testing.T) {
	ts := newTestServer(t)
	assetID := createVehicle(t, ts)

	resp, err := http.Get(fmt.Sprintf("%s/api/beni/%d/tco?al=gennaio", ts.URL, assetID))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCostSeriesEndpoint(t *testing.T) {
	ts := newTestServer(t)
	assetID := createVehicle(t, ts)
	recordFuelEvent(t, ts, assetID)

	url := fmt.Sprintf("%s/api/beni/%d/costi-tempo?periodo=monthly&da=2024-02-01&a=2024-04-30", ts.URL, assetID)
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var series seriesResponse
	decodeBody(t, resp, &series)
	if len(series.Punti) != 3 {
		t.Fatalf("got %d punti, want 3 (feb, mar, apr)", len(series.Punti))
	}
	if series.Punti[0].Etichetta != "2024-02" || series.Punti[0].Totale != "0.00" {
		t.Errorf("february point = %+v, want empty bucket", series.Punti[0])
	}
	if series.Punti[1].Etichetta != "2024-03" || series.Punti[1].Totale != "100.05" {
		t.Errorf("march point = %+v, want 100.05", series.Punti[1])
	}
}

func TestCostSeriesInvalidPeriod(t *testing.T) {
	ts := newTestServer(t)
	assetID := createVehicle(t, ts)

	resp, err := http.Get(fmt.Sprintf("%s/api/beni/%d/costi-tempo?periodo=weekly", ts.URL, assetID))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDeleteAssetWithEventsConflict(t *testing.T) {
	ts := newTestServer(t)
	assetID := createVehicle(t, ts)
	eventID := recordFuelEvent(t, ts, assetID)

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/beni/%d", ts.URL, assetID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("delete with events status = %d, want 409", resp.StatusCode)
	}

	// Remove the event, then the asset goes away cleanly.
	req, _ = http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/eventi/%d", ts.URL, eventID), nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete event status = %d, want 204", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/beni/%d", ts.URL, assetID), nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete asset status = %d, want 204", resp.StatusCode)
	}
}

func TestUpdateEventInvalidatesCache(t *testing.T) {
	ts := newTestServer(t)
	assetID := createVehicle(t, ts)
	eventID := recordFuelEvent(t, ts, assetID)

	url := fmt.Sprintf("%s/api/beni/%d/tco?al=2024-06-15", ts.URL, assetID)
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	var before tcoResponse
	decodeBody(t, resp, &before)

	// Double the direct amount
	req, _ := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/eventi/%d", ts.URL, eventID),
		bytes.NewBufferString(`{
			"data": "2024-03-10T09:00:00Z",
			"descrizione": "Rifornimento",
			"categoria": "trasporti",
			"importo": "120.00",
			"quantita": "200",
			"prezzo_unitario": "1.85"
		}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var updated eventResponse
	decodeBody(t, resp, &updated)
	if updated.Versione != 2 {
		t.Errorf("versione = %d, want 2", updated.Versione)
	}

	resp, err = http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	var after tcoResponse
	decodeBody(t, resp, &after)

	if after.CostiDiretti["trasporti"] != "120.00" {
		t.Errorf("costi_diretti after edit = %q, want 120.00 (stale cache?)", after.CostiDiretti["trasporti"])
	}
	if before.CostiDiretti["trasporti"] != "60.00" {
		t.Errorf("costi_diretti before edit = %q, want 60.00", before.CostiDiretti["trasporti"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/beni")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}
