package game

func (e *Engine) drop(game GameType, name string, u float64) (Result, error) {
	table, entries := e.crates[name], e.cfg.Crates[name]
	if game == GameWheel {
		table, entries = e.wheels[name], e.cfg.Wheels[name]
	}

	i, id, err := table.Pick(u)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Game:       game,
		Multiplier: entries[i].Multiplier,
		Drop: &DropResult{
			Table:     name,
			OutcomeID: id,
			Index:     i,
		},
	}, nil
}
