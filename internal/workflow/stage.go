package workflow

// Stage is where in the post-creation sequence a session currently is.
type Stage string

const (
	StageInitial              Stage = "initial"
	StageUploading            Stage = "uploading"
	StageImageUploaded        Stage = "imageUploaded"
	StageSelectingPreferences Stage = "selectingPreferences"
	StageSelectingSong        Stage = "selectingSong"
	StageSelectingCaption     Stage = "selectingCaption"
	StageSongConfirmed        Stage = "songConfirmed"
	StageCaptionConfirmed     Stage = "captionConfirmed"
	StageBothConfirmed        Stage = "bothConfirmed"
)

// Stages lists every stage in workflow order.
var Stages = []Stage{
	StageInitial,
	StageUploading,
	StageImageUploaded,
	StageSelectingPreferences,
	StageSelectingSong,
	StageSelectingCaption,
	StageSongConfirmed,
	StageCaptionConfirmed,
	StageBothConfirmed,
}

// Valid reports whether s is one of the defined stages.
func (s Stage) Valid() bool {
	for _, v := range Stages {
		if s == v {
			return true
		}
	}
	return false
}

// Confirmed reports whether a song or caption has been confirmed, which is
// what makes a session publishable.
func (s Stage) Confirmed() bool {
	return s == StageSongConfirmed || s == StageCaptionConfirmed || s == StageBothConfirmed
}

// Uploaded reports whether the session has an uploaded image.
func (s Stage) Uploaded() bool {
	return s != StageInitial && s != StageUploading
}

// confirmedStage returns the stage that reflects which selections are set.
func confirmedStage(song, caption bool) Stage {
	switch {
	case song && caption:
		return StageBothConfirmed
	case song:
		return StageSongConfirmed
	case caption:
		return StageCaptionConfirmed
	default:
		return StageImageUploaded
	}
}
