package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// countryZones maps common country names (Portuguese and English spellings)
// to an IANA zone. Inputs that miss the map are tried as raw zone names.
var countryZones = map[string]string{
	"brasil":      "America/Sao_Paulo",
	"brazil":      "America/Sao_Paulo",
	"portugal":    "Europe/Lisbon",
	"espanha":     "Europe/Madrid",
	"spain":       "Europe/Madrid",
	"frança":      "Europe/Paris",
	"france":      "Europe/Paris",
	"alemanha":    "Europe/Berlin",
	"germany":     "Europe/Berlin",
	"italia":      "Europe/Rome",
	"italy":       "Europe/Rome",
	"reino unido": "Europe/London",
	"uk":          "Europe/London",
	"eua":         "America/New_York",
	"usa":         "America/New_York",
	"japao":       "Asia/Tokyo",
	"japan":       "Asia/Tokyo",
	"china":       "Asia/Shanghai",
	"australia":   "Australia/Sydney",
	"india":       "Asia/Kolkata",
	"russia":      "Europe/Moscow",
	"canada":      "America/Toronto",
	"mexico":      "America/Mexico_City",
	"argentina":   "America/Argentina/Buenos_Aires",
}

var weekdaysPT = map[time.Weekday]string{
	time.Monday:    "Segunda-feira",
	time.Tuesday:   "Terça-feira",
	time.Wednesday: "Quarta-feira",
	time.Thursday:  "Quinta-feira",
	time.Friday:    "Sexta-feira",
	time.Saturday:  "Sábado",
	time.Sunday:    "Domingo",
}

// ClockTool reports the current time for a country or IANA zone, formatted
// the Brazilian way.
type ClockTool struct {
	now func() time.Time
}

func NewClockTool() *ClockTool {
	return &ClockTool{now: time.Now}
}

type clockArgs struct {
	Pais string `json:"pais,omitempty" jsonschema_description:"País ou fuso horário IANA para consulta (opcional). Vazio usa o horário local."`
}

func (t *ClockTool) Name() string { return "obter_horario" }

func (t *ClockTool) Description() string {
	return "Obtém o horário atual em formato brasileiro (DD-MM-AAAA às HH:mm, dia da semana). " +
		"Aceita um país (ex: brasil, japao) ou um fuso IANA; sem argumento retorna o horário local."
}

func (t *ClockTool) Parameters() map[string]any {
	return GenerateSchema[clockArgs]()
}

func (t *ClockTool) Execute(ctx context.Context, args map[string]any) *ToolResult {
	var parsed clockArgs
	if err := DecodeArgs(args, &parsed); err != nil {
		return ErrorResult(fmt.Sprintf("argumentos inválidos: %v", err))
	}

	pais := strings.TrimSpace(parsed.Pais)
	now := t.now()
	zoneLabel := ""

	if pais != "" {
		normalized := strings.ToLower(pais)
		zoneName, known := countryZones[normalized]
		if !known {
			zoneName = pais
		}
		if loc, err := time.LoadLocation(zoneName); err == nil {
			now = now.In(loc)
			if known {
				zoneLabel = cases.Title(language.BrazilianPortuguese).String(normalized)
			} else {
				zoneLabel = pais
			}
		} else {
			zoneLabel = fmt.Sprintf("Local (país %q não reconhecido)", pais)
		}
	}

	result := fmt.Sprintf("%s às %s (%s)",
		now.Format("02-01-2006"),
		now.Format("15:04"),
		weekdaysPT[now.Weekday()])
	if zoneLabel != "" {
		result += fmt.Sprintf(" (%s)", zoneLabel)
	}
	return TextResult(result)
}
