package directory

import "strings"

// Name carries the display forms of a person's name.
type Name struct {
	Preferred string `json:"preferred"`
	Index     string `json:"index"`
}

// Profile is the subset of a profiles API record the broker consumes.
type Profile struct {
	ID             string               `json:"id"`
	Name           Name                 `json:"name"`
	ORCID          string               `json:"orcid"`
	EmailAddresses []ProfileEmail       `json:"emailAddresses"`
	Affiliations   []ProfileAffiliation `json:"affiliations"`
}

// ProfileEmail is one email entry of a profile.
type ProfileEmail struct {
	Access string `json:"access"`
	Value  string `json:"value"`
}

// ProfileAffiliation is one affiliation entry of a profile.
type ProfileAffiliation struct {
	Access string      `json:"access"`
	Value  Affiliation `json:"value"`
}

// Affiliation names an institution as an ordered list of name parts.
type Affiliation struct {
	Name []string `json:"name"`
}

// String joins the affiliation name parts.
func (a Affiliation) String() string {
	return strings.Join(a.Name, ", ")
}

// FirstEmail returns the first listed email address.
func (p Profile) FirstEmail() string {
	for _, email := range p.EmailAddresses {
		if value := strings.TrimSpace(email.Value); value != "" {
			return value
		}
	}
	return ""
}

// FirstAffiliation returns the first listed affiliation name.
func (p Profile) FirstAffiliation() string {
	if len(p.Affiliations) == 0 {
		return ""
	}
	return p.Affiliations[0].Value.String()
}

// PersonType is the directory classification of a person, e.g. senior-editor.
type PersonType struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Person is a people API record.
type Person struct {
	ID           string        `json:"id"`
	Type         PersonType    `json:"type"`
	Name         Name          `json:"name"`
	Research     *Research     `json:"research,omitempty"`
	Affiliations []Affiliation `json:"affiliations,omitempty"`
}

// Research lists a person's focuses and expertises.
type Research struct {
	Focuses    []string    `json:"focuses"`
	Expertises []Expertise `json:"expertises"`
}

// Expertise is a named subject area.
type Expertise struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EditorAlias is the condensed listing entry returned for role queries.
type EditorAlias struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Aff        string   `json:"aff,omitempty"`
	Focuses    []string `json:"focuses"`
	Expertises []string `json:"expertises"`
}

func newEditorAlias(person Person) EditorAlias {
	alias := EditorAlias{
		ID:         person.ID,
		Name:       person.Name.Preferred,
		Focuses:    []string{},
		Expertises: []string{},
	}
	if person.Research != nil {
		if person.Research.Focuses != nil {
			alias.Focuses = person.Research.Focuses
		}
		for _, expertise := range person.Research.Expertises {
			alias.Expertises = append(alias.Expertises, expertise.Name)
		}
	}
	affiliations := make([]string, 0, len(person.Affiliations))
	for _, affiliation := range person.Affiliations {
		if name := affiliation.String(); name != "" {
			affiliations = append(affiliations, name)
		}
	}
	alias.Aff = strings.Join(affiliations, ", ")
	return alias
}
