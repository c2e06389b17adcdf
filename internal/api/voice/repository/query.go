package voiceRepository

const (
	queryCreateVoiceProfile = `
		INSERT INTO voice_profiles (
			id, user_id, passphrase_hash, sample_url, sample_mime,
			created_at, updated_at
		) VALUES (
			:id, :user_id, :passphrase_hash, :sample_url, :sample_mime,
			:created_at, :updated_at
		)
	`

	queryUpdateVoiceProfile = `
		UPDATE voice_profiles SET
			passphrase_hash = :passphrase_hash,
			sample_url = :sample_url,
			sample_mime = :sample_mime,
			updated_at = :updated_at
		WHERE user_id = :user_id
	`

	queryGetVoiceProfileByUserID = `
		SELECT
			vp.id, vp.user_id, u.email, u.name AS username, u.phone_number,
			vp.passphrase_hash, vp.sample_url, vp.sample_mime,
			vp.created_at, vp.updated_at
		FROM voice_profiles vp
		JOIN users u ON u.id = vp.user_id
		WHERE vp.user_id = :user_id
	`

	queryGetVoiceProfileByEmail = `
		SELECT
			vp.id, vp.user_id, u.email, u.name AS username, u.phone_number,
			vp.passphrase_hash, vp.sample_url, vp.sample_mime,
			vp.created_at, vp.updated_at
		FROM voice_profiles vp
		JOIN users u ON u.id = vp.user_id
		WHERE LOWER(u.email) = LOWER(:email)
	`

	queryDeleteVoiceProfile = `
		DELETE FROM voice_profiles
		WHERE user_id = :user_id
	`

	queryGetActivePhrases = `
		SELECT
			id, audience, position, phrases, action,
			is_active, created_at, updated_at
		FROM voice_command_phrases
		WHERE audience = :audience AND is_active = true
		ORDER BY position ASC
	`

	queryDeletePhrasesByAudience = `
		DELETE FROM voice_command_phrases
		WHERE audience = :audience
	`

	queryCreatePhrase = `
		INSERT INTO voice_command_phrases (
			id, audience, position, phrases, action,
			is_active, created_at, updated_at
		) VALUES (
			:id, :audience, :position, :phrases, :action,
			:is_active, :created_at, :updated_at
		)
	`
)
