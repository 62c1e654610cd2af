package persistence

import "context"

// Player returns the generation's player row, or nil when there is none.
func (r *reader) Player(ctx context.Context) (*PlayerCore, error) {
	return First[PlayerCore](ctx, r, "")
}

func (r *reader) insertPlayer(ctx context.Context, p *PlayerCore) error {
	id, err := r.insert(ctx, "insert player",
		`INSERT INTO player_core (name, current_season, current_day, clock_time, last_save_time, day_count, generation)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.CurrentSeason, p.CurrentDay, p.CurrentTime, p.LastSaveTime, p.DayCount, r.gen)
	if err != nil {
		return err
	}
	p.ID = id
	p.Generation = r.gen
	return nil
}

// SavePlayer writes the live player, creating it if none exists yet.
func (l *Live) SavePlayer(ctx context.Context, p *PlayerCore) error {
	cur, err := l.Player(ctx)
	if err != nil {
		return err
	}
	if cur == nil {
		return l.insertPlayer(ctx, p)
	}
	p.ID = cur.ID
	p.Generation = LiveGeneration
	_, err = l.exec(ctx, "update player",
		`UPDATE player_core SET name = ?, current_season = ?, current_day = ?, clock_time = ?,
		 last_save_time = ?, day_count = ? WHERE id = ?`,
		p.Name, p.CurrentSeason, p.CurrentDay, p.CurrentTime, p.LastSaveTime, p.DayCount, p.ID)
	return err
}
