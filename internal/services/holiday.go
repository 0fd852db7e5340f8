package services

import (
	"strings"
	"time"

	"github.com/6tail/lunar-go/HolidayUtil"
	"github.com/6tail/lunar-go/calendar"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/at"
	"github.com/rickar/cal/v2/au"
	"github.com/rickar/cal/v2/be"
	"github.com/rickar/cal/v2/br"
	"github.com/rickar/cal/v2/ca"
	"github.com/rickar/cal/v2/ch"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/dk"
	"github.com/rickar/cal/v2/es"
	"github.com/rickar/cal/v2/fi"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/ie"
	"github.com/rickar/cal/v2/it"
	"github.com/rickar/cal/v2/jp"
	"github.com/rickar/cal/v2/nl"
	"github.com/rickar/cal/v2/no"
	"github.com/rickar/cal/v2/nz"
	"github.com/rickar/cal/v2/pl"
	"github.com/rickar/cal/v2/pt"
	"github.com/rickar/cal/v2/se"
	"github.com/rickar/cal/v2/us"
)

const (
	// CountryChina follows the State Council holiday and make-up day table.
	CountryChina = "CN"
	// CountryWeekdays treats Monday to Friday as workdays.
	CountryWeekdays = "NONE"
)

type CountryInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var regionalHolidays = []struct {
	CountryInfo
	holidays []*cal.Holiday
}{
	{CountryInfo{"US", "United States"}, us.Holidays},
	{CountryInfo{"GB", "United Kingdom"}, gb.Holidays},
	{CountryInfo{"DE", "Germany"}, de.Holidays},
	{CountryInfo{"FR", "France"}, fr.Holidays},
	{CountryInfo{"JP", "Japan"}, jp.Holidays},
	{CountryInfo{"AU", "Australia"}, au.HolidaysNSW},
	{CountryInfo{"CA", "Canada"}, ca.Holidays},
	{CountryInfo{"NZ", "New Zealand"}, nz.Holidays},
	{CountryInfo{"IT", "Italy"}, it.Holidays},
	{CountryInfo{"ES", "Spain"}, es.Holidays},
	{CountryInfo{"NL", "Netherlands"}, nl.Holidays},
	{CountryInfo{"BE", "Belgium"}, be.Holidays},
	{CountryInfo{"AT", "Austria"}, at.Holidays},
	{CountryInfo{"CH", "Switzerland"}, ch.Holidays},
	{CountryInfo{"SE", "Sweden"}, se.Holidays},
	{CountryInfo{"NO", "Norway"}, no.Holidays},
	{CountryInfo{"DK", "Denmark"}, dk.Holidays},
	{CountryInfo{"FI", "Finland"}, fi.Holidays},
	{CountryInfo{"PL", "Poland"}, pl.Holidays},
	{CountryInfo{"PT", "Portugal"}, pt.Holidays},
	{CountryInfo{"IE", "Ireland"}, ie.Holidays},
	{CountryInfo{"BR", "Brazil"}, br.Holidays},
}

// HolidayService answers workday questions for reminder scheduling.
// Unknown country codes behave like CountryWeekdays.
type HolidayService struct {
	calendars map[string]*cal.BusinessCalendar
	countries []CountryInfo
}

func NewHolidayService() *HolidayService {
	s := &HolidayService{calendars: make(map[string]*cal.BusinessCalendar, len(regionalHolidays))}
	s.countries = append(s.countries, CountryInfo{CountryChina, "China"})
	for _, r := range regionalHolidays {
		bc := cal.NewBusinessCalendar()
		bc.Name = r.Name
		bc.AddHoliday(r.holidays...)
		s.calendars[r.Code] = bc
		s.countries = append(s.countries, r.CountryInfo)
	}
	s.countries = append(s.countries, CountryInfo{CountryWeekdays, "Weekdays only (Mon-Fri)"})
	return s
}

// Supports reports whether code has its own holiday rules.
func (s *HolidayService) Supports(code string) bool {
	code = strings.ToUpper(code)
	_, ok := s.calendars[code]
	return ok || code == CountryChina || code == CountryWeekdays
}

func (s *HolidayService) SupportedCountries() []CountryInfo {
	return append([]CountryInfo(nil), s.countries...)
}

func (s *HolidayService) IsWorkday(t time.Time, countryCode string) bool {
	code := strings.ToUpper(countryCode)
	if code == CountryChina {
		return chinaWorkday(t)
	}
	if bc, ok := s.calendars[code]; ok {
		return bc.IsWorkday(t)
	}
	return !cal.IsWeekend(t)
}

// chinaWorkday lets the official table override the weekend, which covers
// the Saturdays worked to bridge long holidays.
func chinaWorkday(t time.Time) bool {
	solar := calendar.NewSolarFromDate(t)
	if h := HolidayUtil.GetHolidayByYmd(solar.GetYear(), solar.GetMonth(), solar.GetDay()); h != nil {
		return h.IsWork()
	}
	return !cal.IsWeekend(t)
}

// WorkdaysBetween counts workdays in (from, to]; 0 when to is not after
// from.
func (s *HolidayService) WorkdaysBetween(from, to time.Time, countryCode string) int {
	n := 0
	for day, last := dayOf(from).AddDate(0, 0, 1), dayOf(to); !day.After(last); day = day.AddDate(0, 0, 1) {
		if s.IsWorkday(day, countryCode) {
			n++
		}
	}
	return n
}

// AddWorkdays returns the date n workdays after from.
func (s *HolidayService) AddWorkdays(from time.Time, n int, countryCode string) time.Time {
	day := dayOf(from)
	for n > 0 {
		day = day.AddDate(0, 0, 1)
		if s.IsWorkday(day, countryCode) {
			n--
		}
	}
	return day
}
