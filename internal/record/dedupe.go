package record

// DedupePosts keeps the first post for every external id and drops posts without one.
func DedupePosts(posts []Post) []Post {
	seen := make(map[string]struct{}, len(posts))
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if p.ExternalID == "" {
			continue
		}
		if _, ok := seen[p.ExternalID]; ok {
			continue
		}
		seen[p.ExternalID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// DedupePeople keeps the first person for every profile url and drops people without one.
func DedupePeople(people []Person) []Person {
	seen := make(map[string]struct{}, len(people))
	out := make([]Person, 0, len(people))
	for _, p := range people {
		if p.ProfileURL == "" {
			continue
		}
		if _, ok := seen[p.ProfileURL]; ok {
			continue
		}
		seen[p.ProfileURL] = struct{}{}
		out = append(out, p)
	}
	return out
}
