// Package genre maps the backend's fine-grained genre and subgenre strings to
// a small canonical category vocabulary for guide consumers.
package genre

// category is one canonical category and the backend strings it covers.
type category struct {
	name    string
	members []string
}

// taxonomy is consulted in declaration order; a string may belong to several
// categories ("Crime Drama" is Crime, Crime drama and Drama).
var taxonomy = []category{
	{"Animated", []string{"Family Animation", "Cartoons"}},
	{"Educational", []string{"Education & Guidance", "Instructional & Educational"}},
	{"News", []string{"News and Information", "General News", "News + Opinion"}},
	{"History", []string{"History & Social Studies"}},
	{"Politics", []string{"Politics"}},
	{"Action", []string{
		"Action & Adventure", "Action Classics", "Martial Arts", "Crime Action",
		"Family Adventures", "Action Sci-Fi & Fantasy", "Action Thrillers", "African-American Action",
	}},
	{"Adventure", []string{"Action & Adventure", "Adventures", "Sci-Fi Adventure"}},
	{"Reality", []string{"Reality", "Reality Drama", "Courtroom Reality", "Occupational Reality", "Celebrity Reality"}},
	{"Documentary", []string{
		"Documentaries", "Social & Cultural Documentaries", "Science and Nature Documentaries",
		"Miscellaneous Documentaries", "Crime Documentaries", "Travel & Adventure Documentaries",
		"Sports Documentaries", "Military Documentaries", "Political Documentaries",
		"Foreign Documentaries", "Religion & Mythology Documentaries", "Historical Documentaries",
		"Biographical Documentaries", "Faith & Spirituality Documentaries",
	}},
	{"Biography", []string{"Biographical Documentaries", "Inspirational Biographies"}},
	{"Science Fiction", []string{"Sci-Fi Thrillers", "Sci-Fi Adventure", "Action Sci-Fi & Fantasy"}},
	{"Thriller", []string{"Sci-Fi Thrillers", "Thrillers", "Crime Thrillers"}},
	{"Talk", []string{"Talk & Variety", "Talk Show"}},
	{"Variety", []string{"Sketch Comedies"}},
	{"Home Improvement", []string{"Art & Design", "DIY & How To", "Home Improvement"}},
	{"House/garden", []string{"Home & Garden"}},
	{"Cooking", []string{"Cooking Instruction", "Food & Wine", "Food Stories"}},
	{"Travel", []string{"Travel & Adventure Documentaries", "Travel"}},
	{"Western", []string{"Westerns", "Classic Westerns"}},
	{"LGBTQ", []string{"Gay & Lesbian", "Gay & Lesbian Dramas", "Gay"}},
	{"Game show", []string{"Game Show"}},
	{"Military", []string{"Classic War Stories"}},
	{"Comedy", []string{
		"Cult Comedies", "Spoofs and Satire", "Slapstick", "Classic Comedies", "Stand-Up",
		"Sports Comedies", "African-American Comedies", "Showbiz Comedies", "Sketch Comedies",
		"Teen Comedies", "Latino Comedies", "Family Comedies",
	}},
	{"Crime", []string{"Crime Action", "Crime Drama", "Crime Documentaries"}},
	{"Sports", []string{"Sports", "Sports & Sports Highlights", "Sports Documentaries", "Poker & Gambling"}},
	{"Poker & Gambling", []string{"Poker & Gambling"}},
	{"Crime drama", []string{"Crime Drama"}},
	{"Drama", []string{"Classic Dramas", "Family Drama", "Indie Drama", "Romantic Drama", "Crime Drama"}},
	{"Children", []string{
		"Kids", "Children & Family", "Kids' TV", "Cartoons", "Animals",
		"Family Animation", "Ages 2-4", "Ages 11-12",
	}},
}

// index maps a backend string to its canonical categories in taxonomy order.
var index = buildIndex()

func buildIndex() map[string][]string {
	idx := make(map[string][]string)
	for _, c := range taxonomy {
		for _, m := range c.members {
			idx[m] = append(idx[m], c.name)
		}
	}
	return idx
}

// Classify returns every canonical category containing s, in taxonomy order.
// Strings the taxonomy does not know are passed through as a single category.
// Matching is exact. The empty string classifies to nothing.
func Classify(s string) []string {
	if s == "" {
		return nil
	}
	if cats, ok := index[s]; ok {
		out := make([]string, len(cats))
		copy(out, cats)
		return out
	}
	return []string{s}
}

// Categories returns the canonical category names in taxonomy order.
func Categories() []string {
	out := make([]string, len(taxonomy))
	for i, c := range taxonomy {
		out[i] = c.name
	}
	return out
}
