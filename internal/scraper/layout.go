package scraper

import "fmt"

// DefaultBaseURL is the public first-instance dashboard.
const DefaultBaseURL = "https://gpsjus.tjrn.jus.br/1grau_gerencial_publico.php"

// Layout holds the structural anchors used to find things on the dashboard.
// Each table anchor is an XPath that resolves to the table element itself.
type Layout struct {
	UnitSelectID string `mapstructure:"unit_select_id"`
	ReadyMarker  string `mapstructure:"ready_marker"`

	TotalBacklog        string `mapstructure:"total_backlog"`
	PendingCases        string `mapstructure:"pending_cases"`
	PendingProceedings  string `mapstructure:"pending_proceedings"`
	Suspended           string `mapstructure:"suspended"`
	ClosedByType        string `mapstructure:"closed_by_type"`
	Custody             string `mapstructure:"custody"`
	Diligence           string `mapstructure:"diligence"`
	MonthlyDistribution string `mapstructure:"monthly_distribution"`
	ClosedLast12Months  string `mapstructure:"closed_last_12_months"`
	JudicialActs        string `mapstructure:"judicial_acts"`
}

// DefaultLayout matches the dashboard markup.
func DefaultLayout() Layout {
	return Layout{
		UnitSelectID: "unidade",
		ReadyMarker:  "//h3[text()='Acervo']",

		TotalBacklog:        "//h3[text()='Acervo']/following-sibling::div[@class='box-rounded']/a/div[@class='big']",
		PendingCases:        "//h4[contains(text(), 'Processos em tramitação')]/following::table[1]",
		PendingProceedings:  "//h4[text()='Procedimentos e petições em tramitação']/following::table[1]",
		Suspended:           "//h4[contains(text(), 'Suspensos / Arquivo provisório')]/following::table[1]",
		ClosedByType:        tableDataAnchor("Processos Conclusos por Tipo"),
		Custody:             tableDataAnchor("Controle de Prisões"),
		Diligence:           "//div[contains(@class,'table-data') and div[contains(text(),'Controle de Diligências (PJe)')]]/table",
		MonthlyDistribution: tableDataAnchor("Demonstrativo de Distribuições"),
		ClosedLast12Months:  tableDataAnchor("Processos Baixados"),
		JudicialActs:        tableDataAnchor("Atos Judiciais Proferidos"),
	}
}

func tableDataAnchor(title string) string {
	return fmt.Sprintf("//div[contains(@class,'table-data')]/div[contains(text(),'%s')]/following-sibling::table", title)
}

// Merge returns l with every empty field taken from def.
func (l Layout) Merge(def Layout) Layout {
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return Layout{
		UnitSelectID:        pick(l.UnitSelectID, def.UnitSelectID),
		ReadyMarker:         pick(l.ReadyMarker, def.ReadyMarker),
		TotalBacklog:        pick(l.TotalBacklog, def.TotalBacklog),
		PendingCases:        pick(l.PendingCases, def.PendingCases),
		PendingProceedings:  pick(l.PendingProceedings, def.PendingProceedings),
		Suspended:           pick(l.Suspended, def.Suspended),
		ClosedByType:        pick(l.ClosedByType, def.ClosedByType),
		Custody:             pick(l.Custody, def.Custody),
		Diligence:           pick(l.Diligence, def.Diligence),
		MonthlyDistribution: pick(l.MonthlyDistribution, def.MonthlyDistribution),
		ClosedLast12Months:  pick(l.ClosedLast12Months, def.ClosedLast12Months),
		JudicialActs:        pick(l.JudicialActs, def.JudicialActs),
	}
}

// unitSelectXPath locates the unit dropdown.
func (l Layout) unitSelectXPath() string {
	return fmt.Sprintf("//select[@id='%s']", l.UnitSelectID)
}
