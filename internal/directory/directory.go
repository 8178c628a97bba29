package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Investor is an existing LP with a portfolio.
type Investor struct {
	Name               string   `json:"name"`
	Email              string   `json:"email"`
	PortfolioCompanies []string `json:"portfolio_companies"`
	InvestedAmount     int64    `json:"invested_amount"`
}

// Prospect is a potential investor who has not committed yet.
type Prospect struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	InterestedAmount int64  `json:"interested_amount"`
	Notes            string `json:"notes"`
	Source           string `json:"source"`
}

// Agent is a staff member transfers can target.
type Agent struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Email    string `json:"email"`
	Identity string `json:"identity"`
	Phone    string `json:"twilio_phone"`
}

// Directory is the read-only caller/agent lookup backing summary context and
// transfer targeting.
type Directory struct {
	Investors []Investor `json:"investors"`
	Prospects []Prospect `json:"prospects"`
	Agents    []Agent    `json:"agents"`
}

// Load reads the directory from a JSON file.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var d Directory
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse directory: %w", err)
	}
	return &d, nil
}

// Empty returns a directory with no entries; lookups miss but never error.
func Empty() *Directory { return &Directory{} }

// CallerContext renders a one-line context string for a known caller, or
// ("", false) when the caller is unknown.
func (d *Directory) CallerContext(email, callerType string) (string, bool) {
	switch callerType {
	case "investor":
		for _, inv := range d.Investors {
			if strings.EqualFold(inv.Email, email) {
				return investorSummary(inv), true
			}
		}
	case "prospect":
		for _, p := range d.Prospects {
			if strings.EqualFold(p.Email, email) {
				return prospectSummary(p), true
			}
		}
	}
	return "", false
}

func investorSummary(inv Investor) string {
	companies := strings.Join(inv.PortfolioCompanies, ", ")
	return fmt.Sprintf("Invested $%d across %d companies: %s", inv.InvestedAmount, len(inv.PortfolioCompanies), companies)
}

func prospectSummary(p Prospect) string {
	return fmt.Sprintf("Interested in investing $%d. %s Source: %s", p.InterestedAmount, p.Notes, p.Source)
}

// AgentByRole finds an agent by role name, case-insensitively.
func (d *Directory) AgentByRole(role string) (Agent, bool) {
	for _, a := range d.Agents {
		if strings.EqualFold(a.Role, role) {
			return a, true
		}
	}
	return Agent{}, false
}

// AgentForTarget resolves a transfer target category to an agent.
// "compliance" maps to the Compliance Officer, "general_partner" to the
// General Partner; anything else falls back to the Compliance Officer.
func (d *Directory) AgentForTarget(category string) (Agent, bool) {
	switch category {
	case "general_partner":
		return d.AgentByRole("General Partner")
	case "compliance":
		return d.AgentByRole("Compliance Officer")
	default:
		return d.AgentByRole("Compliance Officer")
	}
}
