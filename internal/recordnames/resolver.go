package recordnames

import "namegofer/internal/callgroup"

// Resolve binds the results of a batch to a resolver that answers each lookup.
//
// A source missing from results yields (nil, nil). A failed source yields
// its fetch error, the same value for every caller of that source.
// Otherwise the caller gets only the names of the ids it asked for; ids the
// source had no record for are omitted.
func Resolve(results map[SourceID]SourceResult) callgroup.Resolver[Lookup, Names] {
	return func(call Lookup) (Names, error) {
		res, ok := results[call.Source]
		if !ok {
			return nil, nil
		}
		if res.Failed() {
			return nil, res.Err
		}

		names := make(Names, len(call.Records))
		for _, id := range call.Records {
			if name, found := res.Names[id]; found {
				names[id] = name
			}
		}
		return names, nil
	}
}
